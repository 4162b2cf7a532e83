package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/playroom/internal/board"
	"github.com/kapu/playroom/internal/fabric"
	"github.com/kapu/playroom/internal/msgcat"
	"github.com/kapu/playroom/internal/obslog"
	"github.com/kapu/playroom/internal/presence"
	"github.com/kapu/playroom/internal/protocol"
	"github.com/kapu/playroom/internal/puzzle"
	"github.com/kapu/playroom/internal/room"
)

// session is the user bound to a connection by its join_user event.
type session struct {
	UserID   string
	UserName string
}

// Gateway routes inbound envelopes to the managers and fans results out
// through the fabric. It also implements room.Notifier for lifecycle
// broadcasts.
type Gateway struct {
	fab      *fabric.Fabric
	presence *presence.Tracker
	rooms    *room.Manager
	puzzles  *puzzle.Manager
	boards   *board.Manager
	msgs     *msgcat.Catalog

	homeRoomID string

	mu       sync.RWMutex
	sessions map[uuid.UUID]session
}

func New(fab *fabric.Fabric, tracker *presence.Tracker, rooms *room.Manager, puzzles *puzzle.Manager, boards *board.Manager, msgs *msgcat.Catalog, homeRoomID string) *Gateway {
	g := &Gateway{
		fab:        fab,
		presence:   tracker,
		rooms:      rooms,
		puzzles:    puzzles,
		boards:     boards,
		msgs:       msgs,
		homeRoomID: homeRoomID,
		sessions:   make(map[uuid.UUID]session),
	}
	rooms.SetNotifier(g)
	puzzles.SetCompletionHandler(g.onPuzzleCompleted)
	return g
}

func (g *Gateway) bind(connID uuid.UUID, userID, userName string) {
	g.mu.Lock()
	g.sessions[connID] = session{UserID: userID, UserName: userName}
	g.mu.Unlock()
}

func (g *Gateway) lookup(connID uuid.UUID) (session, bool) {
	g.mu.RLock()
	s, ok := g.sessions[connID]
	g.mu.RUnlock()
	return s, ok
}

func (g *Gateway) unbind(connID uuid.UUID) (session, bool) {
	g.mu.Lock()
	s, ok := g.sessions[connID]
	delete(g.sessions, connID)
	g.mu.Unlock()
	return s, ok
}

// Handle dispatches one inbound envelope. Every failure path reports to the
// initiating connection only; state is unchanged whenever an error frame is
// sent.
func (g *Gateway) Handle(ctx context.Context, c fabric.Sender, env *protocol.Envelope) {
	var err error
	switch env.Type {
	case protocol.TypeJoinUser:
		err = g.handleJoin(ctx, c, env)
	case protocol.TypeGoOffline:
		err = g.handleGoOffline(ctx, c, env)
	case protocol.TypeSwitchRoom:
		err = g.handleSwitchRoom(ctx, c, env)
	case protocol.TypeLeaveRoom:
		err = g.handleLeaveRoom(ctx, c, env)
	case protocol.TypeInvitationResponse:
		err = g.handleInvitationResponse(ctx, c, env)
	case protocol.TypeRemovePlayer:
		err = g.handleRemovePlayer(ctx, c, env)
	case protocol.TypeCloseRoom:
		err = g.handleCloseRoom(ctx, c, env)
	case protocol.TypeSubscribeGame:
		err = g.handleSubscribeGame(ctx, c, env)
	case protocol.TypeMovePiece:
		err = g.handleMovePiece(ctx, c, env)
	case protocol.TypeRequestHint:
		err = g.handleRequestHint(ctx, c, env)
	case protocol.TypeResetPuzzle:
		err = g.handleResetPuzzle(ctx, c, env)
	case protocol.TypeDrawStart, protocol.TypeDrawMove:
		err = g.handleDrawTransient(ctx, c, env)
	case protocol.TypeDrawEnd:
		err = g.handleDrawEnd(ctx, c, env)
	case protocol.TypeBoardClear:
		err = g.handleBoardClear(ctx, c, env)
	case protocol.TypeBoardUndo:
		err = g.handleBoardUndo(ctx, c, env)
	case protocol.TypeCursorPosition:
		err = g.handleCursor(ctx, c, env)
	default:
		c.Send(protocol.NewError("unknown_type", protocol.CategoryValidation, "unknown event type: "+env.Type))
		return
	}
	if err != nil {
		obslog.L().Debug("gateway_handle_error",
			zap.String("event", env.Type),
			zap.String("conn_id", c.ConnID().String()),
			zap.Error(err),
		)
		c.Send(g.mapError(err))
	}
}

// HandleClose runs when the transport tears a connection down. The last
// connection of a user flips them offline.
func (g *Gateway) HandleClose(ctx context.Context, connID uuid.UUID) {
	g.fab.UnsubscribeAll(connID)
	s, ok := g.unbind(connID)
	if !ok {
		return
	}
	if g.presence.Detach(ctx, s.UserID, connID) {
		g.broadcastPresence(protocol.EventUserOffline, s.UserID, s.UserName)
	}
}

// OfflineFromSweep handles a user the reconciler found with no live
// connections left.
func (g *Gateway) OfflineFromSweep(userID string) {
	g.broadcastPresence(protocol.EventUserOffline, userID, "")
}

func (g *Gateway) broadcastPresence(event, userID, userName string) {
	g.fab.Publish(fabric.RoomKey(g.homeRoomID), protocol.NewEvent(event, protocol.PresencePayload{
		UserID:   userID,
		UserName: userName,
	}))
}

// GameStarting broadcasts the countdown start to the room.
func (g *Gateway) GameStarting(r *room.Room) {
	g.fab.Publish(fabric.RoomKey(r.ID), protocol.NewEvent(protocol.EventGameStarting, protocol.GameStartPayload{
		RoomID: r.ID,
		GameID: r.CurrentGameID,
	}))
}

// GameStarted broadcasts the countdown end.
func (g *Gateway) GameStarted(r *room.Room) {
	g.fab.Publish(fabric.RoomKey(r.ID), protocol.NewEvent(protocol.EventGameStarted, protocol.GameStartPayload{
		RoomID: r.ID,
		GameID: r.CurrentGameID,
	}))
}

// RoomClosed broadcasts the close to the room channel and, through their
// user channels, to players who may already have navigated away.
func (g *Gateway) RoomClosed(r *room.Room, reason string) {
	ev := protocol.NewEvent(protocol.EventRoomClosed, protocol.RoomClosedPayload{RoomID: r.ID, Reason: reason})
	g.fab.Publish(fabric.RoomKey(r.ID), ev)
	for _, p := range r.Players {
		g.fab.Publish(fabric.UserKey(p), ev)
	}
}

func (g *Gateway) onPuzzleCompleted(pg *puzzle.Game) {
	completedAt := pg.UpdatedAt
	if pg.EndTime != nil {
		completedAt = *pg.EndTime
	}
	g.fab.PublishGame(pg.ID, protocol.NewEvent(protocol.EventPuzzleCompleted, protocol.PuzzleCompletedPayload{
		GameID:      pg.ID,
		CompletedAt: completedAt,
		TotalMoves:  pg.Moves,
	}))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := g.rooms.Complete(ctx, pg.RoomID, "completed"); err != nil {
		obslog.L().Warn("room_complete_error", zap.String("room_id", pg.RoomID), zap.Error(err))
	}
}
