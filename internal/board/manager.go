package board

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/playroom/internal/obslog"
)

// Manager owns whiteboard session mutations.
type Manager struct {
	store *Store
}

func NewManager(store *Store) *Manager { return &Manager{store: store} }

func (m *Manager) Create(ctx context.Context, roomID string) (*Board, error) {
	now := time.Now()
	b := &Board{
		ID:        mintBoardID(),
		RoomID:    roomID,
		Strokes:   []Stroke{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Save(ctx, b); err != nil {
		return nil, err
	}
	obslog.L().Info("board_create",
		zap.String("board_id", b.ID),
		zap.String("room_id", roomID),
	)
	return b, nil
}

func (m *Manager) Get(ctx context.Context, boardID string) (*Board, error) {
	b, err := m.store.Load(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBoardNotFound
	}
	return b, nil
}

// CommitStroke appends a finished stroke and bumps the board version.
// In-progress draw traffic never reaches here; only the draw-end commit does.
func (m *Manager) CommitStroke(ctx context.Context, boardID, userID string, data json.RawMessage) (*Stroke, *Board, error) {
	stroke := Stroke{
		ID:        mintStrokeID(),
		UserID:    userID,
		Data:      data,
		CreatedAt: time.Now(),
	}
	b, err := m.store.Mutate(ctx, boardID, func(b *Board) error {
		b.Strokes = append(b.Strokes, stroke)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	obslog.L().Info("board_stroke_commit",
		zap.String("board_id", boardID),
		zap.String("stroke_id", stroke.ID),
		zap.String("user_id", userID),
		zap.Int64("version", b.Version),
	)
	return &stroke, b, nil
}

// Clear removes strokes in one commit, so a clear costs exactly one version
// bump no matter how many strokes it drops. ClearSelf keeps everyone else's
// work.
func (m *Manager) Clear(ctx context.Context, boardID, userID string, scope ClearScope) (*Board, int, error) {
	removed := 0
	b, err := m.store.Mutate(ctx, boardID, func(b *Board) error {
		removed = 0
		if scope == ClearSelf {
			kept := b.Strokes[:0]
			for _, s := range b.Strokes {
				if s.UserID == userID {
					removed++
					continue
				}
				kept = append(kept, s)
			}
			b.Strokes = kept
			return nil
		}
		removed = len(b.Strokes)
		b.Strokes = []Stroke{}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	obslog.L().Info("board_clear",
		zap.String("board_id", boardID),
		zap.String("user_id", userID),
		zap.String("scope", string(scope)),
		zap.Int("removed", removed),
		zap.Int64("version", b.Version),
	)
	return b, removed, nil
}

// Undo removes one of the caller's own strokes by ID. Someone else's stroke
// is invisible to undo, same as a missing one.
func (m *Manager) Undo(ctx context.Context, boardID, userID, strokeID string) (*Board, error) {
	b, err := m.store.Mutate(ctx, boardID, func(b *Board) error {
		for i, s := range b.Strokes {
			if s.ID == strokeID && s.UserID == userID {
				b.Strokes = append(b.Strokes[:i], b.Strokes[i+1:]...)
				return nil
			}
		}
		return ErrStrokeNotFound
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("board_undo",
		zap.String("board_id", boardID),
		zap.String("stroke_id", strokeID),
		zap.Int64("version", b.Version),
	)
	return b, nil
}

// UpdateCursor stores the cursor best-effort. Persistence failures are
// logged and swallowed so the live broadcast still goes out. Hides are
// upserted too so the user stops appearing in later snapshots.
func (m *Manager) UpdateCursor(ctx context.Context, boardID, userID string, x, y float64, visible bool) Cursor {
	c := Cursor{UserID: userID, X: x, Y: y, Visible: visible, LastActiveAt: time.Now()}
	if err := m.store.SetCursor(ctx, boardID, c); err != nil {
		obslog.L().Warn("board_cursor_persist_error",
			zap.String("board_id", boardID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
	return c
}

// Snapshot returns the full board plus the currently visible cursors, for
// clients joining mid-session. Hidden cursors are filtered out.
func (m *Manager) Snapshot(ctx context.Context, boardID string) (*Board, []Cursor, error) {
	b, err := m.Get(ctx, boardID)
	if err != nil {
		return nil, nil, err
	}
	all, err := m.store.Cursors(ctx, boardID)
	if err != nil {
		obslog.L().Warn("board_cursor_load_error", zap.String("board_id", boardID), zap.Error(err))
		return b, nil, nil
	}
	cursors := make([]Cursor, 0, len(all))
	for _, c := range all {
		if c.Visible {
			cursors = append(cursors, c)
		}
	}
	return b, cursors, nil
}
