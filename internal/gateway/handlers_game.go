package gateway

import (
	"context"
	"errors"

	"github.com/kapu/playroom/internal/board"
	"github.com/kapu/playroom/internal/fabric"
	"github.com/kapu/playroom/internal/protocol"
	"github.com/kapu/playroom/internal/puzzle"
)

func toProtoPos(p *puzzle.Position) *protocol.Position {
	if p == nil {
		return nil
	}
	return &protocol.Position{Row: p.Row, Col: p.Col}
}

func moveEvent(gameID string, echo puzzle.MoveEcho, totalMoves int) protocol.OutEvent {
	return protocol.NewEvent(protocol.EventPieceMoved, protocol.PieceMovedPayload{
		GameID:            gameID,
		PieceID:           echo.PieceID,
		FromPosition:      toProtoPos(echo.From),
		ToPosition:        toProtoPos(echo.To),
		IsCorrectlyPlaced: echo.IsCorrectlyPlaced,
		TotalMoves:        totalMoves,
	})
}

// handleSubscribeGame joins the connection to a game channel and replies
// with the current state, so reconnecting clients resync without replay.
func (g *Gateway) handleSubscribeGame(ctx context.Context, c fabric.Sender, env *protocol.Envelope) error {
	var p protocol.SubscribeGame
	if err := protocol.DecodePayload(env, &p); err != nil {
		return errf("%w: %v", errInvalidPayload, err)
	}
	if _, ok := g.lookup(c.ConnID()); !ok {
		return errNotJoined
	}
	key := fabric.GameKey(p.GameID)
	if p.Spectator {
		key = fabric.GameSpectatorsKey(p.GameID)
	}

	if pg, err := g.puzzles.Get(ctx, p.GameID); err == nil {
		g.fab.Subscribe(key, c)
		c.Send(protocol.NewEvent(protocol.EventPuzzleSnapshot, pg))
		return nil
	} else if !errors.Is(err, puzzle.ErrGameNotFound) {
		return err
	}

	b, cursors, err := g.boards.Snapshot(ctx, p.GameID)
	if err != nil {
		return err
	}
	g.fab.Subscribe(key, c)
	c.Send(protocol.NewEvent(protocol.EventBoardSnapshot, protocol.BoardSnapshotPayload{
		GameID:  b.ID,
		Board:   b,
		Cursors: cursors,
		Version: b.Version,
	}))
	return nil
}

// handleMovePiece applies the move and broadcasts the mover's echo, then a
// second echo for a displaced piece when the swap rule fired. The
// completion scan runs after the broadcast, off the request path.
func (g *Gateway) handleMovePiece(ctx context.Context, c fabric.Sender, env *protocol.Envelope) error {
	var p protocol.MovePiece
	if err := protocol.DecodePayload(env, &p); err != nil {
		return errf("%w: %v", errInvalidPayload, err)
	}
	if _, ok := g.lookup(c.ConnID()); !ok {
		return errNotJoined
	}
	var from *puzzle.Position
	if p.FromPosition != nil {
		from = &puzzle.Position{Row: p.FromPosition.Row, Col: p.FromPosition.Col}
	}
	to := puzzle.Position{Row: p.ToPosition.Row, Col: p.ToPosition.Col}

	res, err := g.puzzles.MovePiece(ctx, p.GameID, p.PieceID, from, to)
	if err != nil {
		return err
	}
	g.fab.PublishGame(p.GameID, moveEvent(p.GameID, res.Moved, res.Game.Moves))
	if res.Displaced != nil {
		g.fab.PublishGame(p.GameID, moveEvent(p.GameID, *res.Displaced, res.Game.Moves))
	}
	g.puzzles.ScheduleCompletionCheck(p.GameID)
	return nil
}

// handleRequestHint reveals the home position to the requester only; the
// rest of the channel learns just that a hint was spent.
func (g *Gateway) handleRequestHint(ctx context.Context, c fabric.Sender, env *protocol.Envelope) error {
	var p protocol.RequestHint
	if err := protocol.DecodePayload(env, &p); err != nil {
		return errf("%w: %v", errInvalidPayload, err)
	}
	s, ok := g.lookup(c.ConnID())
	if !ok {
		return errNotJoined
	}
	h, err := g.puzzles.RequestHint(ctx, p.GameID)
	if err != nil {
		return err
	}
	c.Send(protocol.NewEvent(protocol.EventHintRevealed, protocol.HintRevealedPayload{
		GameID:       p.GameID,
		PieceID:      h.PieceID,
		HomePosition: protocol.Position{Row: h.HomePosition.Row, Col: h.HomePosition.Col},
	}))
	g.fab.PublishExcept(fabric.GameKey(p.GameID), protocol.NewEvent(protocol.EventHintUsed, struct {
		GameID  string `json:"gameId"`
		UserID  string `json:"userId"`
		Message string `json:"message"`
	}{
		GameID:  p.GameID,
		UserID:  s.UserID,
		Message: g.msgs.RenderOr("puzzle.hint_used", "a hint was used", map[string]any{"User": s.UserID}),
	}), c.ConnID())
	return nil
}

func (g *Gateway) handleResetPuzzle(ctx context.Context, c fabric.Sender, env *protocol.Envelope) error {
	var p protocol.ResetPuzzle
	if err := protocol.DecodePayload(env, &p); err != nil {
		return errf("%w: %v", errInvalidPayload, err)
	}
	if _, ok := g.lookup(c.ConnID()); !ok {
		return errNotJoined
	}
	pg, err := g.puzzles.Reset(ctx, p.GameID)
	if err != nil {
		return err
	}
	g.fab.PublishGame(p.GameID, protocol.NewEvent(protocol.EventPuzzleReset, pg))
	return nil
}

// handleDrawTransient relays in-progress draw traffic to everyone else on
// the channel. Nothing is persisted and the version does not move.
func (g *Gateway) handleDrawTransient(ctx context.Context, c fabric.Sender, env *protocol.Envelope) error {
	var p protocol.DrawTransient
	if err := protocol.DecodePayload(env, &p); err != nil {
		return errf("%w: %v", errInvalidPayload, err)
	}
	s, ok := g.lookup(c.ConnID())
	if !ok {
		return errNotJoined
	}
	relay := protocol.NewEvent(env.Type, protocol.DrawRelayPayload{
		GameID: p.GameID,
		UserID: s.UserID,
		Data:   p.Data,
	})
	g.fab.PublishExcept(fabric.GameKey(p.GameID), relay, c.ConnID())
	g.fab.PublishExcept(fabric.GameSpectatorsKey(p.GameID), relay, c.ConnID())
	return nil
}

// handleDrawEnd commits the finished stroke; the broadcast includes the
// author so every client, the author included, converges on the stored
// stroke and its version.
func (g *Gateway) handleDrawEnd(ctx context.Context, c fabric.Sender, env *protocol.Envelope) error {
	var p protocol.DrawEnd
	if err := protocol.DecodePayload(env, &p); err != nil {
		return errf("%w: %v", errInvalidPayload, err)
	}
	s, ok := g.lookup(c.ConnID())
	if !ok {
		return errNotJoined
	}
	stroke, b, err := g.boards.CommitStroke(ctx, p.GameID, s.UserID, p.StrokeData)
	if err != nil {
		return err
	}
	g.fab.PublishGame(p.GameID, protocol.NewEvent(protocol.EventStrokeAdded, protocol.StrokeAddedPayload{
		GameID:  p.GameID,
		Stroke:  stroke,
		Version: b.Version,
	}))
	return nil
}

func (g *Gateway) handleBoardClear(ctx context.Context, c fabric.Sender, env *protocol.Envelope) error {
	var p protocol.BoardClear
	if err := protocol.DecodePayload(env, &p); err != nil {
		return errf("%w: %v", errInvalidPayload, err)
	}
	s, ok := g.lookup(c.ConnID())
	if !ok {
		return errNotJoined
	}
	b, removed, err := g.boards.Clear(ctx, p.GameID, s.UserID, board.ClearScope(p.Scope))
	if err != nil {
		return err
	}
	g.fab.PublishGame(p.GameID, protocol.NewEvent(protocol.EventBoardCleared, protocol.BoardClearedPayload{
		GameID:  p.GameID,
		UserID:  s.UserID,
		Scope:   p.Scope,
		Removed: removed,
		Version: b.Version,
	}))
	return nil
}

func (g *Gateway) handleBoardUndo(ctx context.Context, c fabric.Sender, env *protocol.Envelope) error {
	var p protocol.BoardUndo
	if err := protocol.DecodePayload(env, &p); err != nil {
		return errf("%w: %v", errInvalidPayload, err)
	}
	s, ok := g.lookup(c.ConnID())
	if !ok {
		return errNotJoined
	}
	b, err := g.boards.Undo(ctx, p.GameID, s.UserID, p.StrokeID)
	if err != nil {
		return err
	}
	g.fab.PublishGame(p.GameID, protocol.NewEvent(protocol.EventStrokeRemoved, protocol.StrokeRemovedPayload{
		GameID:   p.GameID,
		StrokeID: p.StrokeID,
		Version:  b.Version,
	}))
	return nil
}

// handleCursor broadcasts the cursor to everyone else regardless of whether
// the best-effort persistence succeeded.
func (g *Gateway) handleCursor(ctx context.Context, c fabric.Sender, env *protocol.Envelope) error {
	var p protocol.CursorPosition
	if err := protocol.DecodePayload(env, &p); err != nil {
		return errf("%w: %v", errInvalidPayload, err)
	}
	s, ok := g.lookup(c.ConnID())
	if !ok {
		return errNotJoined
	}
	g.boards.UpdateCursor(ctx, p.GameID, s.UserID, p.X, p.Y, p.Visible)
	ev := protocol.NewEvent(protocol.EventBoardCursor, protocol.CursorPayload{
		GameID:  p.GameID,
		UserID:  s.UserID,
		X:       p.X,
		Y:       p.Y,
		Visible: p.Visible,
	})
	g.fab.PublishExcept(fabric.GameKey(p.GameID), ev, c.ConnID())
	g.fab.PublishExcept(fabric.GameSpectatorsKey(p.GameID), ev, c.ConnID())
	return nil
}
