package gateway

import (
	"context"

	"github.com/kapu/playroom/internal/fabric"
	"github.com/kapu/playroom/internal/protocol"
	"github.com/kapu/playroom/internal/room"
)

func roomUpdate(r *room.Room) protocol.OutEvent {
	return protocol.NewEvent(protocol.EventRoomDataUpdate, r)
}

// handleJoin binds the user to this connection, attaches presence and lands
// them in the home room. Only the first connection of a user broadcasts the
// online transition.
func (g *Gateway) handleJoin(ctx context.Context, c fabric.Sender, env *protocol.Envelope) error {
	var p protocol.JoinUser
	if err := protocol.DecodePayload(env, &p); err != nil {
		return errf("%w: %v", errInvalidPayload, err)
	}
	// Land them in the home room first; a failed switch must leave no
	// session or presence behind.
	home, err := g.rooms.Switch(ctx, p.UserID, g.homeRoomID)
	if err != nil {
		return err
	}
	g.bind(c.ConnID(), p.UserID, p.UserName)
	wasOffline := g.presence.Attach(ctx, p.UserID, p.UserName, c.ConnID())
	g.fab.Subscribe(fabric.UserKey(p.UserID), c)
	g.fab.Subscribe(fabric.RoomKey(g.homeRoomID), c)

	if wasOffline {
		g.broadcastPresence(protocol.EventUserOnline, p.UserID, p.UserName)
	}
	c.Send(roomUpdate(home))
	return nil
}

// handleGoOffline clears every connection of the user at once. Explicit
// departure, unlike a transport close, always flips them offline.
func (g *Gateway) handleGoOffline(ctx context.Context, c fabric.Sender, env *protocol.Envelope) error {
	var p protocol.GoOffline
	if err := protocol.DecodePayload(env, &p); err != nil {
		return errf("%w: %v", errInvalidPayload, err)
	}
	s, ok := g.lookup(c.ConnID())
	if !ok {
		return errNotJoined
	}
	if p.UserID != s.UserID {
		return errUserMismatch
	}
	for _, id := range g.presence.GoOffline(ctx, s.UserID) {
		g.fab.UnsubscribeAll(id)
		g.mu.Lock()
		delete(g.sessions, id)
		g.mu.Unlock()
	}
	g.broadcastPresence(protocol.EventUserOffline, s.UserID, s.UserName)
	return nil
}

func (g *Gateway) handleSwitchRoom(ctx context.Context, c fabric.Sender, env *protocol.Envelope) error {
	var p protocol.SwitchRoom
	if err := protocol.DecodePayload(env, &p); err != nil {
		return errf("%w: %v", errInvalidPayload, err)
	}
	s, ok := g.lookup(c.ConnID())
	if !ok {
		return errNotJoined
	}
	if p.UserID != s.UserID {
		return errUserMismatch
	}
	r, err := g.rooms.Switch(ctx, s.UserID, p.NewRoomID)
	if err != nil {
		return err
	}
	if p.LeaveRoomID != "" && p.LeaveRoomID != g.homeRoomID {
		g.fab.Unsubscribe(fabric.RoomKey(p.LeaveRoomID), c.ConnID())
	}
	g.fab.Subscribe(fabric.RoomKey(r.ID), c)
	g.fab.Publish(fabric.RoomKey(r.ID), roomUpdate(r))
	return nil
}

func (g *Gateway) handleLeaveRoom(ctx context.Context, c fabric.Sender, env *protocol.Envelope) error {
	var p protocol.LeaveRoom
	if err := protocol.DecodePayload(env, &p); err != nil {
		return errf("%w: %v", errInvalidPayload, err)
	}
	s, ok := g.lookup(c.ConnID())
	if !ok {
		return errNotJoined
	}
	if p.RoomID != g.homeRoomID {
		g.fab.Unsubscribe(fabric.RoomKey(p.RoomID), c.ConnID())
	}
	home, err := g.rooms.Switch(ctx, s.UserID, g.homeRoomID)
	if err != nil {
		return err
	}
	c.Send(roomUpdate(home))
	return nil
}

// handleInvitationResponse resolves an invitation. Acceptance joins the
// connection to the room channel before the broadcast so the new player
// sees their own join.
func (g *Gateway) handleInvitationResponse(ctx context.Context, c fabric.Sender, env *protocol.Envelope) error {
	var p protocol.InvitationResponse
	if err := protocol.DecodePayload(env, &p); err != nil {
		return errf("%w: %v", errInvalidPayload, err)
	}
	s, ok := g.lookup(c.ConnID())
	if !ok {
		return errNotJoined
	}
	r, err := g.rooms.Respond(ctx, p.RoomID, s.UserID, p.Accepted)
	if err != nil {
		return err
	}
	if p.Accepted {
		g.fab.Subscribe(fabric.RoomKey(r.ID), c)
		g.fab.Publish(fabric.RoomKey(r.ID), protocol.NewEvent(protocol.EventRoomPlayerJoined, protocol.PresencePayload{
			UserID:   s.UserID,
			UserName: s.UserName,
		}))
	}
	g.fab.Publish(fabric.RoomKey(r.ID), roomUpdate(r))
	return nil
}

func (g *Gateway) handleRemovePlayer(ctx context.Context, c fabric.Sender, env *protocol.Envelope) error {
	var p protocol.RemovePlayer
	if err := protocol.DecodePayload(env, &p); err != nil {
		return errf("%w: %v", errInvalidPayload, err)
	}
	s, ok := g.lookup(c.ConnID())
	if !ok {
		return errNotJoined
	}
	r, err := g.rooms.RemovePlayer(ctx, p.RoomID, s.UserID, p.TargetID)
	if err != nil {
		return err
	}
	removed := protocol.NewEvent(protocol.EventRoomPlayerRemoved, protocol.PlayerRemovedPayload{
		RoomID:  p.RoomID,
		UserID:  p.TargetID,
		Message: g.msgs.RenderOr("room.player_removed", "removed from the room", map[string]any{"Target": p.TargetID}),
	})
	g.fab.Publish(fabric.UserKey(p.TargetID), removed)
	for _, id := range g.presence.Connections(p.TargetID) {
		g.fab.Unsubscribe(fabric.RoomKey(p.RoomID), id)
	}
	g.fab.Publish(fabric.RoomKey(p.RoomID), removed)
	g.fab.Publish(fabric.RoomKey(p.RoomID), roomUpdate(r))
	return nil
}

func (g *Gateway) handleCloseRoom(ctx context.Context, c fabric.Sender, env *protocol.Envelope) error {
	var p protocol.CloseRoom
	if err := protocol.DecodePayload(env, &p); err != nil {
		return errf("%w: %v", errInvalidPayload, err)
	}
	s, ok := g.lookup(c.ConnID())
	if !ok {
		return errNotJoined
	}
	// broadcast happens via the lifecycle notifier
	_, err := g.rooms.Close(ctx, p.RoomID, s.UserID, p.Reason)
	return err
}
