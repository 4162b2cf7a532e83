package gateway

import (
	"errors"
	"fmt"

	"github.com/kapu/playroom/internal/board"
	"github.com/kapu/playroom/internal/protocol"
	"github.com/kapu/playroom/internal/puzzle"
	"github.com/kapu/playroom/internal/room"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

const (
	errNotJoined      = staticErr("connection has no joined user")
	errUserMismatch   = staticErr("userId does not match this connection")
	errInvalidPayload = staticErr("invalid payload")
)

func errf(format string, args ...any) error { return fmt.Errorf(format, args...) }

func (g *Gateway) msg(key, fallback string) string {
	return g.msgs.RenderOr(key, fallback, nil)
}

// mapError turns a manager error into the error frame for the initiator.
func (g *Gateway) mapError(err error) protocol.OutEvent {
	switch {
	case errors.Is(err, errNotJoined):
		return protocol.NewError("not_joined", protocol.CategoryAuthorization, "join first")
	case errors.Is(err, errUserMismatch):
		return protocol.NewError("user_mismatch", protocol.CategoryAuthorization, "user does not match this connection")
	case errors.Is(err, errInvalidPayload):
		return protocol.NewError("invalid_payload", protocol.CategoryValidation, err.Error())

	case errors.Is(err, room.ErrRoomNotFound):
		return protocol.NewError("room_not_found", protocol.CategoryNotFound, g.msg("room.not_found", "room not found"))
	case errors.Is(err, room.ErrNotCreator):
		return protocol.NewError("not_creator", protocol.CategoryAuthorization, g.msg("room.not_creator", "only the room creator can do that"))
	case errors.Is(err, room.ErrCreatorIrremovable):
		return protocol.NewError("creator_irremovable", protocol.CategoryAuthorization, "the creator cannot be removed")
	case errors.Is(err, room.ErrNotAPlayer):
		return protocol.NewError("not_a_player", protocol.CategoryAuthorization, "not a player in this room")
	case errors.Is(err, room.ErrNotInvited):
		return protocol.NewError("not_invited", protocol.CategoryAuthorization, "no pending invitation for this room")
	case errors.Is(err, room.ErrNeedMorePlayers):
		return protocol.NewError("need_more_players", protocol.CategoryValidation, "at least two players are required")
	case errors.Is(err, room.ErrAlreadyStarted):
		return protocol.NewError("already_started", protocol.CategoryValidation, "the room is not waiting")
	case errors.Is(err, room.ErrRoomFull):
		return protocol.NewError("room_full", protocol.CategoryValidation, "the room is full")
	case errors.Is(err, room.ErrHomeRoomImmutable):
		return protocol.NewError("home_room_immutable", protocol.CategoryAuthorization, "the home room cannot be changed")

	case errors.Is(err, puzzle.ErrGameNotFound):
		return protocol.NewError("game_not_found", protocol.CategoryNotFound, "game not found")
	case errors.Is(err, puzzle.ErrPieceNotFound):
		return protocol.NewError("piece_not_found", protocol.CategoryNotFound, "piece not found")
	case errors.Is(err, puzzle.ErrBadPosition):
		return protocol.NewError("bad_position", protocol.CategoryValidation, g.msg("puzzle.bad_position", "position is outside the board"))
	case errors.Is(err, puzzle.ErrNoHint):
		return protocol.NewError("no_hint", protocol.CategoryValidation, "every piece is already placed")

	case errors.Is(err, board.ErrBoardNotFound):
		return protocol.NewError("board_not_found", protocol.CategoryNotFound, "board not found")
	case errors.Is(err, board.ErrStrokeNotFound):
		return protocol.NewError("stroke_not_found", protocol.CategoryNotFound, g.msg("board.stroke_not_found", "stroke not found"))

	case errors.Is(err, room.ErrConcurrentUpdate),
		errors.Is(err, puzzle.ErrConcurrentUpdate),
		errors.Is(err, board.ErrConcurrentUpdate):
		return protocol.NewError("concurrent_update", protocol.CategoryTransient, g.msg("generic.transient", "temporary conflict, try again"))
	}
	return protocol.NewError("internal", protocol.CategoryTransient, g.msg("generic.transient", "temporary failure, try again"))
}
