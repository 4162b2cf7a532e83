package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kapu/playroom/internal/board"
	"github.com/kapu/playroom/internal/puzzle"
)

type projRec struct {
	mu    sync.Mutex
	rooms map[string]string
}

func (p *projRec) SetCurrentRoom(_ context.Context, userID, roomID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rooms[userID] = roomID
	return nil
}

func (p *projRec) get(userID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rooms[userID]
}

type notifyRec struct {
	mu       sync.Mutex
	starting []string
	started  []string
	closed   []string
	reasons  []string
}

func (n *notifyRec) GameStarting(r *Room) {
	n.mu.Lock()
	n.starting = append(n.starting, r.ID)
	n.mu.Unlock()
}

func (n *notifyRec) GameStarted(r *Room) {
	n.mu.Lock()
	n.started = append(n.started, r.ID)
	n.mu.Unlock()
}

func (n *notifyRec) RoomClosed(r *Room, reason string) {
	n.mu.Lock()
	n.closed = append(n.closed, r.ID)
	n.reasons = append(n.reasons, reason)
	n.mu.Unlock()
}

func (n *notifyRec) startedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.started)
}

func newTestManager(t *testing.T) (*Manager, *projRec, *notifyRec) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	proj := &projRec{rooms: map[string]string{}}
	notify := &notifyRec{}
	m := NewManager(
		NewStore(rdb, time.Hour),
		proj,
		puzzle.NewManager(puzzle.NewStore(rdb, time.Hour)),
		board.NewManager(board.NewStore(rdb, time.Hour)),
		Params{HomeRoomID: "home", MaxPlayers: 4, StartCountdown: 50 * time.Millisecond, PuzzleRows: 2, PuzzleCols: 2},
	)
	m.SetNotifier(notify)
	t.Cleanup(m.StopTimers)
	return m, proj, notify
}

func TestEnsureHome_Idempotent(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	h1, err := m.EnsureHome(ctx)
	if err != nil {
		t.Fatalf("EnsureHome: %v", err)
	}
	h2, err := m.EnsureHome(ctx)
	if err != nil {
		t.Fatalf("EnsureHome again: %v", err)
	}
	if h1.ID != "home" || h2.ID != "home" || h2.GameMode != ModeHome {
		t.Fatalf("unexpected home room: %+v", h2)
	}
}

func TestCreate_CreatorJoinedInviteesPending(t *testing.T) {
	m, proj, _ := newTestManager(t)
	ctx := context.Background()
	r, err := m.Create(ctx, "alice", []string{"bob", "bob", "alice", " ", "carol"}, ModePuzzle, 30)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(r.Players) != 1 || r.Players[0] != "alice" {
		t.Fatalf("creator should be the only player: %+v", r.Players)
	}
	if len(r.PendingInvitations) != 2 {
		t.Fatalf("invitees should be deduped and exclude the creator: %+v", r.PendingInvitations)
	}
	if r.Status != StatusWaiting {
		t.Fatalf("new room should be waiting, got %s", r.Status)
	}
	if proj.get("alice") != r.ID {
		t.Fatalf("creator's projection should point at the new room")
	}
}

func TestInvite_IdempotentNoOp(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	r, _ := m.Create(ctx, "alice", []string{"bob"}, ModePuzzle, 0)

	_, out, err := m.Invite(ctx, r.ID, "alice", []string{"bob", "alice", "dave"})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if len(out.Added) != 1 || out.Added[0] != "dave" {
		t.Fatalf("only dave is a new invitee: %+v", out.Added)
	}
	if out.Skipped != 2 {
		t.Fatalf("bob and alice should be skipped, got %d", out.Skipped)
	}

	// all targets already covered: a clean no-op, not an error
	cur, out, err := m.Invite(ctx, r.ID, "alice", []string{"bob", "dave"})
	if err != nil {
		t.Fatalf("repeat Invite: %v", err)
	}
	if len(out.Added) != 0 || out.Skipped != 2 {
		t.Fatalf("repeat invite should add nobody: %+v", out)
	}
	if len(cur.PendingInvitations) != 2 {
		t.Fatalf("pending list must not grow: %+v", cur.PendingInvitations)
	}

	if _, _, err := m.Invite(ctx, r.ID, "mallory", []string{"eve"}); !errors.Is(err, ErrNotAPlayer) {
		t.Fatalf("outsider invite: want ErrNotAPlayer, got %v", err)
	}
}

func TestRespond_AcceptAndDecline(t *testing.T) {
	m, proj, _ := newTestManager(t)
	ctx := context.Background()
	r, _ := m.Create(ctx, "alice", []string{"bob", "carol"}, ModePuzzle, 0)

	cur, err := m.Respond(ctx, r.ID, "bob", true)
	if err != nil {
		t.Fatalf("Respond accept: %v", err)
	}
	if !cur.HasPlayer("bob") || cur.HasPending("bob") {
		t.Fatalf("accept should move bob from pending to players: %+v", cur)
	}
	if proj.get("bob") != r.ID {
		t.Fatalf("accepting should set bob's projection")
	}

	cur, err = m.Respond(ctx, r.ID, "carol", false)
	if err != nil {
		t.Fatalf("Respond decline: %v", err)
	}
	if cur.HasPlayer("carol") || cur.HasPending("carol") {
		t.Fatalf("decline should only drop the pending entry: %+v", cur)
	}

	if _, err := m.Respond(ctx, r.ID, "carol", true); !errors.Is(err, ErrNotInvited) {
		t.Fatalf("responding twice: want ErrNotInvited, got %v", err)
	}
}

func TestRespond_RoomFull(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	r, _ := m.Create(ctx, "alice", []string{"b", "c", "d", "e"}, ModePuzzle, 0)
	for _, u := range []string{"b", "c", "d"} {
		if _, err := m.Respond(ctx, r.ID, u, true); err != nil {
			t.Fatalf("accept %s: %v", u, err)
		}
	}
	if _, err := m.Respond(ctx, r.ID, "e", true); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("want ErrRoomFull, got %v", err)
	}
}

func TestRemovePlayer_Rules(t *testing.T) {
	m, proj, _ := newTestManager(t)
	ctx := context.Background()
	r, _ := m.Create(ctx, "alice", []string{"bob"}, ModePuzzle, 0)
	if _, err := m.Respond(ctx, r.ID, "bob", true); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if _, err := m.RemovePlayer(ctx, r.ID, "bob", "alice"); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("want ErrNotCreator, got %v", err)
	}
	if _, err := m.RemovePlayer(ctx, r.ID, "alice", "alice"); !errors.Is(err, ErrCreatorIrremovable) {
		t.Fatalf("want ErrCreatorIrremovable, got %v", err)
	}
	if _, err := m.RemovePlayer(ctx, r.ID, "alice", "ghost"); !errors.Is(err, ErrNotAPlayer) {
		t.Fatalf("want ErrNotAPlayer, got %v", err)
	}
	cur, err := m.RemovePlayer(ctx, r.ID, "alice", "bob")
	if err != nil {
		t.Fatalf("RemovePlayer: %v", err)
	}
	if cur.HasPlayer("bob") {
		t.Fatalf("bob should be gone: %+v", cur.Players)
	}
	if proj.get("bob") != "" {
		t.Fatalf("removal should clear bob's projection")
	}
}

func TestStart_ValidationsAndCountdown(t *testing.T) {
	m, _, notify := newTestManager(t)
	ctx := context.Background()
	r, _ := m.Create(ctx, "alice", []string{"bob"}, ModePuzzle, 0)

	if _, err := m.Start(ctx, r.ID, "alice"); !errors.Is(err, ErrNeedMorePlayers) {
		t.Fatalf("solo start: want ErrNeedMorePlayers, got %v", err)
	}
	if _, err := m.Respond(ctx, r.ID, "bob", true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := m.Start(ctx, r.ID, "bob"); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("non-creator start: want ErrNotCreator, got %v", err)
	}

	cur, err := m.Start(ctx, r.ID, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if cur.Status != StatusInProgress || cur.CurrentGameID == "" {
		t.Fatalf("start should attach a game: %+v", cur)
	}
	if len(notify.starting) != 1 {
		t.Fatalf("expected one starting notification, got %d", len(notify.starting))
	}

	if _, err := m.Start(ctx, r.ID, "alice"); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("double start: want ErrAlreadyStarted, got %v", err)
	}

	deadline := time.After(2 * time.Second)
	for notify.startedCount() == 0 {
		select {
		case <-deadline:
			t.Fatalf("started notification never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStart_WhiteboardMode(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	r, _ := m.Create(ctx, "alice", []string{"bob"}, ModeWhiteboard, 0)
	if _, err := m.Respond(ctx, r.ID, "bob", true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	cur, err := m.Start(ctx, r.ID, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if cur.CurrentGameID == "" {
		t.Fatalf("whiteboard start should create a board")
	}
}

func TestClose_CountdownCancelled(t *testing.T) {
	m, _, notify := newTestManager(t)
	ctx := context.Background()
	r, _ := m.Create(ctx, "alice", []string{"bob"}, ModePuzzle, 0)
	if _, err := m.Respond(ctx, r.ID, "bob", true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := m.Start(ctx, r.ID, "alice"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Close(ctx, r.ID, "alice", ""); err != nil {
		t.Fatalf("Close: %v", err)
	}

	time.Sleep(150 * time.Millisecond)
	if notify.startedCount() != 0 {
		t.Fatalf("started must not fire after a close mid-countdown")
	}
	notify.mu.Lock()
	defer notify.mu.Unlock()
	if len(notify.closed) != 1 || notify.reasons[0] != "closed" {
		t.Fatalf("expected one close notification: %+v %+v", notify.closed, notify.reasons)
	}
}

func TestClose_Authorization(t *testing.T) {
	m, proj, _ := newTestManager(t)
	ctx := context.Background()
	r, _ := m.Create(ctx, "alice", []string{"bob"}, ModePuzzle, 30)
	if _, err := m.Respond(ctx, r.ID, "bob", true); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if _, err := m.Close(ctx, r.ID, "bob", ""); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("plain close by member: want ErrNotCreator, got %v", err)
	}
	if _, err := m.Close(ctx, r.ID, "mallory", "time_expired"); !errors.Is(err, ErrNotAPlayer) {
		t.Fatalf("expiry report by outsider: want ErrNotAPlayer, got %v", err)
	}
	// time-limit expiry may be reported by any player
	cur, err := m.Close(ctx, r.ID, "bob", "time_expired")
	if err != nil {
		t.Fatalf("Close time_expired: %v", err)
	}
	if cur.Status != StatusCompleted {
		t.Fatalf("close should complete the room, got %s", cur.Status)
	}
	if proj.get("alice") != "" || proj.get("bob") != "" {
		t.Fatalf("close should clear every player's projection")
	}
}

func TestClose_HomeImmutable(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	if _, err := m.EnsureHome(ctx); err != nil {
		t.Fatalf("EnsureHome: %v", err)
	}
	if _, err := m.Close(ctx, "home", "system", ""); !errors.Is(err, ErrHomeRoomImmutable) {
		t.Fatalf("want ErrHomeRoomImmutable, got %v", err)
	}
	if _, err := m.Start(ctx, "home", "system"); !errors.Is(err, ErrHomeRoomImmutable) {
		t.Fatalf("want ErrHomeRoomImmutable, got %v", err)
	}
}

func TestSwitch_HomeAutoJoins(t *testing.T) {
	m, proj, _ := newTestManager(t)
	ctx := context.Background()
	if _, err := m.EnsureHome(ctx); err != nil {
		t.Fatalf("EnsureHome: %v", err)
	}

	h, err := m.Switch(ctx, "alice", "home")
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if !h.HasPlayer("alice") {
		t.Fatalf("switching to home should add the player")
	}
	h2, err := m.Switch(ctx, "alice", "home")
	if err != nil {
		t.Fatalf("Switch again: %v", err)
	}
	count := 0
	for _, p := range h2.Players {
		if p == "alice" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("home join must be idempotent, alice appears %d times", count)
	}
	if proj.get("alice") != "home" {
		t.Fatalf("switch should update the projection")
	}

	if _, err := m.Switch(ctx, "alice", "missing-room"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("want ErrRoomNotFound, got %v", err)
	}
}

func TestSwitch_OtherRoomNoMembershipChange(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	r, _ := m.Create(ctx, "alice", nil, ModePuzzle, 0)

	cur, err := m.Switch(ctx, "bob", r.ID)
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if cur.HasPlayer("bob") {
		t.Fatalf("switching must not join a non-home room")
	}
}

func TestComplete_Internal(t *testing.T) {
	m, _, notify := newTestManager(t)
	ctx := context.Background()
	r, _ := m.Create(ctx, "alice", []string{"bob"}, ModePuzzle, 0)
	if _, err := m.Respond(ctx, r.ID, "bob", true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := m.Start(ctx, r.ID, "alice"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cur, err := m.Complete(ctx, r.ID, "completed")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if cur.Status != StatusCompleted {
		t.Fatalf("want completed, got %s", cur.Status)
	}
	notify.mu.Lock()
	defer notify.mu.Unlock()
	if len(notify.closed) != 1 || notify.reasons[0] != "completed" {
		t.Fatalf("expected a completed close notification: %+v", notify.reasons)
	}
}
