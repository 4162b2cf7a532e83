package room

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/playroom/internal/board"
	"github.com/kapu/playroom/internal/obslog"
	"github.com/kapu/playroom/internal/puzzle"
)

// ProjectionStore updates the user's current-room projection.
type ProjectionStore interface {
	SetCurrentRoom(ctx context.Context, userID, roomID string) error
}

// Notifier receives lifecycle events the directory cannot deliver itself.
// The gateway implements it on top of the broadcast fabric.
type Notifier interface {
	GameStarting(r *Room)
	GameStarted(r *Room)
	RoomClosed(r *Room, reason string)
}

// Params bundles the tunables the directory needs.
type Params struct {
	HomeRoomID     string
	MaxPlayers     int
	StartCountdown time.Duration
	PuzzleRows     int
	PuzzleCols     int
}

func (p *Params) normalize() {
	if p.HomeRoomID == "" {
		p.HomeRoomID = "home"
	}
	if p.MaxPlayers < 2 {
		p.MaxPlayers = 8
	}
	if p.StartCountdown <= 0 {
		p.StartCountdown = 3 * time.Second
	}
	if p.PuzzleRows <= 0 {
		p.PuzzleRows = 4
	}
	if p.PuzzleCols <= 0 {
		p.PuzzleCols = 4
	}
}

// Manager is the authoritative room directory: membership, invitations and
// lifecycle transitions.
type Manager struct {
	store   *Store
	users   ProjectionStore
	puzzles *puzzle.Manager
	boards  *board.Manager
	params  Params

	notify Notifier

	// start countdown timers, cancelled when the room closes mid-countdown
	timerMu sync.Mutex
	timers  map[string]*time.Timer
}

func NewManager(store *Store, users ProjectionStore, puzzles *puzzle.Manager, boards *board.Manager, params Params) *Manager {
	params.normalize()
	return &Manager{
		store:   store,
		users:   users,
		puzzles: puzzles,
		boards:  boards,
		params:  params,
		timers:  make(map[string]*time.Timer),
	}
}

// SetNotifier wires the lifecycle event sink. Optional; nil means no
// countdown or close notifications are delivered.
func (m *Manager) SetNotifier(n Notifier) { m.notify = n }

func (m *Manager) Get(ctx context.Context, roomID string) (*Room, error) {
	r, err := m.store.Load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// EnsureHome creates the singleton home room if missing. Idempotent;
// safe to call at every boot.
func (m *Manager) EnsureHome(ctx context.Context) (*Room, error) {
	now := time.Now()
	home := &Room{
		ID:        m.params.HomeRoomID,
		CreatorID: "system",
		Players:   []string{"system"},
		Status:    StatusWaiting,
		GameMode:  ModeHome,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := m.store.SaveNew(ctx, home)
	if err != nil {
		return nil, err
	}
	if created {
		obslog.L().Info("room_home_created", zap.String("room_id", home.ID))
		return home, nil
	}
	return m.Get(ctx, m.params.HomeRoomID)
}

// Create opens a new waiting room. The creator is auto-joined; invitees land
// in pendingInvitations. The creator's current-room projection moves to the
// new room.
func (m *Manager) Create(ctx context.Context, creatorID string, invitees []string, mode GameMode, timeLimitMinutes int) (*Room, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return nil, ErrNotAPlayer
	}
	if mode != ModePuzzle && mode != ModeWhiteboard {
		mode = ModePuzzle
	}
	now := time.Now()
	r := &Room{
		ID:               mintRoomID(),
		CreatorID:        creatorID,
		Players:          []string{creatorID},
		Status:           StatusWaiting,
		GameMode:         mode,
		TimeLimitMinutes: timeLimitMinutes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, t := range invitees {
		t = strings.TrimSpace(t)
		if t == "" || t == creatorID || r.HasPending(t) {
			continue
		}
		r.PendingInvitations = append(r.PendingInvitations, t)
	}
	if _, err := m.store.SaveNew(ctx, r); err != nil {
		return nil, err
	}
	m.setProjection(ctx, creatorID, r.ID)
	obslog.L().Info("room_create",
		zap.String("room_id", r.ID),
		zap.String("creator_id", creatorID),
		zap.String("game_mode", string(mode)),
		zap.Int("invitees", len(r.PendingInvitations)),
	)
	return r, nil
}

// Invite adds targets to pendingInvitations. Targets already playing or
// already invited are skipped; when every target is covered the call is a
// no-op reported through InviteOutcome, not an error.
func (m *Manager) Invite(ctx context.Context, roomID, requesterID string, targets []string) (*Room, *InviteOutcome, error) {
	out := &InviteOutcome{}
	r, err := m.store.Mutate(ctx, roomID, func(r *Room) error {
		if !r.HasPlayer(requesterID) {
			return ErrNotAPlayer
		}
		out.Added = out.Added[:0]
		out.Skipped = 0
		for _, t := range targets {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if r.HasPlayer(t) || r.HasPending(t) {
				out.Skipped++
				continue
			}
			r.PendingInvitations = append(r.PendingInvitations, t)
			out.Added = append(out.Added, t)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	obslog.L().Info("room_invite",
		zap.String("room_id", roomID),
		zap.String("requester_id", requesterID),
		zap.Int("added", len(out.Added)),
		zap.Int("skipped", out.Skipped),
	)
	return r, out, nil
}

// Respond resolves a pending invitation. Accepting moves the user from
// pendingInvitations to players atomically and updates their current-room
// projection; declining only removes the pending entry.
func (m *Manager) Respond(ctx context.Context, roomID, userID string, accepted bool) (*Room, error) {
	r, err := m.store.Mutate(ctx, roomID, func(r *Room) error {
		if !r.HasPending(userID) {
			return ErrNotInvited
		}
		r.removePending(userID)
		if !accepted {
			return nil
		}
		if len(r.Players) >= m.params.MaxPlayers {
			return ErrRoomFull
		}
		r.Players = append(r.Players, userID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if accepted {
		m.setProjection(ctx, userID, roomID)
	}
	obslog.L().Info("room_invitation_response",
		zap.String("room_id", roomID),
		zap.String("user_id", userID),
		zap.Bool("accepted", accepted),
	)
	return r, nil
}

// RemovePlayer ejects targetID. Creator-only; the creator themselves cannot
// be removed.
func (m *Manager) RemovePlayer(ctx context.Context, roomID, requesterID, targetID string) (*Room, error) {
	r, err := m.store.Mutate(ctx, roomID, func(r *Room) error {
		if r.CreatorID != requesterID {
			return ErrNotCreator
		}
		if targetID == r.CreatorID {
			return ErrCreatorIrremovable
		}
		if !r.HasPlayer(targetID) {
			return ErrNotAPlayer
		}
		r.removePlayer(targetID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.setProjection(ctx, targetID, "")
	obslog.L().Info("room_remove_player",
		zap.String("room_id", roomID),
		zap.String("requester_id", requesterID),
		zap.String("target_id", targetID),
	)
	return r, nil
}

// Start transitions waiting → inProgress. Creator-only, needs at least two
// players. Creates the game session for the room's mode, fires the
// "starting" notification, and schedules the "started" notification after
// the countdown as a cancellable timer tied to the room lifecycle.
func (m *Manager) Start(ctx context.Context, roomID, requesterID string) (*Room, error) {
	cur, err := m.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if cur.GameMode == ModeHome {
		return nil, ErrHomeRoomImmutable
	}
	if cur.CreatorID != requesterID {
		return nil, ErrNotCreator
	}
	if cur.Status != StatusWaiting {
		return nil, ErrAlreadyStarted
	}
	if len(cur.Players) < 2 {
		return nil, ErrNeedMorePlayers
	}

	var gameID string
	switch cur.GameMode {
	case ModeWhiteboard:
		b, berr := m.boards.Create(ctx, roomID)
		if berr != nil {
			return nil, berr
		}
		gameID = b.ID
	default:
		g, perr := m.puzzles.Create(ctx, roomID, m.params.PuzzleRows, m.params.PuzzleCols)
		if perr != nil {
			return nil, perr
		}
		gameID = g.ID
	}

	// 게임 문서 생성 후 방 상태를 다시 검증하며 전이한다.
	r, err := m.store.Mutate(ctx, roomID, func(r *Room) error {
		if r.CreatorID != requesterID {
			return ErrNotCreator
		}
		if r.Status != StatusWaiting {
			return ErrAlreadyStarted
		}
		if len(r.Players) < 2 {
			return ErrNeedMorePlayers
		}
		r.Status = StatusInProgress
		r.CurrentGameID = gameID
		return nil
	})
	if err != nil {
		return nil, err
	}

	obslog.L().Info("room_start",
		zap.String("room_id", roomID),
		zap.String("game_id", gameID),
		zap.String("game_mode", string(r.GameMode)),
		zap.Int("players", len(r.Players)),
	)
	if m.notify != nil {
		m.notify.GameStarting(r)
	}
	m.scheduleStarted(r)
	return r, nil
}

func (m *Manager) scheduleStarted(r *Room) {
	roomID := r.ID
	m.timerMu.Lock()
	if old, ok := m.timers[roomID]; ok {
		old.Stop()
	}
	m.timers[roomID] = time.AfterFunc(m.params.StartCountdown, func() {
		m.timerMu.Lock()
		delete(m.timers, roomID)
		m.timerMu.Unlock()
		cur, err := m.Get(context.Background(), roomID)
		if err != nil || cur.Status != StatusInProgress {
			// closed mid-countdown; the started notification is a no-op
			return
		}
		if m.notify != nil {
			m.notify.GameStarted(cur)
		}
	})
	m.timerMu.Unlock()
}

func (m *Manager) cancelCountdown(roomID string) {
	m.timerMu.Lock()
	if t, ok := m.timers[roomID]; ok {
		t.Stop()
		delete(m.timers, roomID)
	}
	m.timerMu.Unlock()
}

// Close terminates the room. The creator may close at any time; any player
// may report time-limit expiry, since the server runs no authoritative
// room timer.
func (m *Manager) Close(ctx context.Context, roomID, requesterID, reason string) (*Room, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "closed"
	}
	r, err := m.store.Mutate(ctx, roomID, func(r *Room) error {
		if r.GameMode == ModeHome {
			return ErrHomeRoomImmutable
		}
		if reason == "time_expired" {
			if !r.HasPlayer(requesterID) {
				return ErrNotAPlayer
			}
		} else if r.CreatorID != requesterID {
			return ErrNotCreator
		}
		r.Status = StatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.finishRoom(ctx, r, reason)
	return r, nil
}

// Complete marks the room finished from an internal trigger (all pieces
// placed). No role check: the game itself is the requester.
func (m *Manager) Complete(ctx context.Context, roomID, reason string) (*Room, error) {
	r, err := m.store.Mutate(ctx, roomID, func(r *Room) error {
		if r.GameMode == ModeHome {
			return ErrHomeRoomImmutable
		}
		if r.Status == StatusCompleted {
			return nil
		}
		r.Status = StatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.finishRoom(ctx, r, reason)
	return r, nil
}

func (m *Manager) finishRoom(ctx context.Context, r *Room, reason string) {
	m.cancelCountdown(r.ID)
	for _, p := range r.Players {
		m.setProjection(ctx, p, "")
	}
	obslog.L().Info("room_closed", zap.String("room_id", r.ID), zap.String("reason", reason))
	if m.notify != nil {
		m.notify.RoomClosed(r, reason)
	}
}

// Switch moves the user's current-room projection. Switching into the home
// room also records them in its player list (idempotent); other rooms only
// change membership through the invitation protocol.
func (m *Manager) Switch(ctx context.Context, userID, newRoomID string) (*Room, error) {
	r, err := m.Get(ctx, newRoomID)
	if err != nil {
		return nil, err
	}
	if r.GameMode == ModeHome && !r.HasPlayer(userID) {
		r, err = m.store.Mutate(ctx, newRoomID, func(r *Room) error {
			if !r.HasPlayer(userID) {
				r.Players = append(r.Players, userID)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	m.setProjection(ctx, userID, newRoomID)
	obslog.L().Debug("room_switch", zap.String("user_id", userID), zap.String("room_id", newRoomID))
	return r, nil
}

// setProjection best-effort updates the user's current-room projection.
func (m *Manager) setProjection(ctx context.Context, userID, roomID string) {
	if m.users == nil {
		return
	}
	if err := m.users.SetCurrentRoom(ctx, userID, roomID); err != nil {
		obslog.L().Warn("room_projection_error",
			zap.String("user_id", userID),
			zap.String("room_id", roomID),
			zap.Error(err),
		)
	}
}

// StopTimers cancels every pending countdown. Called on shutdown.
func (m *Manager) StopTimers() {
	m.timerMu.Lock()
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
	m.timerMu.Unlock()
}
