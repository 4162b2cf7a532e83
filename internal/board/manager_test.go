package board

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewManager(NewStore(rdb, time.Hour))
}

func stroke(t *testing.T, m *Manager, boardID, userID string) (*Stroke, *Board) {
	t.Helper()
	s, b, err := m.CommitStroke(context.Background(), boardID, userID, json.RawMessage(`{"points":[[0,0],[1,1]]}`))
	if err != nil {
		t.Fatalf("CommitStroke: %v", err)
	}
	return s, b
}

func TestCommitStroke_VersionStrictlyIncreases(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	b, err := m.Create(ctx, "room1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.Version != 0 {
		t.Fatalf("fresh board version should be 0, got %d", b.Version)
	}

	var last int64
	for i := 0; i < 5; i++ {
		_, cur := stroke(t, m, b.ID, "u1")
		if cur.Version <= last {
			t.Fatalf("version did not advance: %d then %d", last, cur.Version)
		}
		last = cur.Version
	}
	cur, _ := m.Get(ctx, b.ID)
	if len(cur.Strokes) != 5 {
		t.Fatalf("expected 5 strokes, got %d", len(cur.Strokes))
	}
}

func TestCursor_DoesNotBumpVersion(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	b, _ := m.Create(ctx, "room1")
	_, afterStroke := stroke(t, m, b.ID, "u1")

	for i := 0; i < 10; i++ {
		m.UpdateCursor(ctx, b.ID, "u1", float64(i), float64(i), true)
	}
	cur, cursors, err := m.Snapshot(ctx, b.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if cur.Version != afterStroke.Version {
		t.Fatalf("cursor traffic moved the version: %d → %d", afterStroke.Version, cur.Version)
	}
	if len(cursors) != 1 || cursors[0].X != 9 {
		t.Fatalf("expected the last cursor to win, got %+v", cursors)
	}
}

func TestCursor_HiddenExcludedFromSnapshot(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	b, _ := m.Create(ctx, "room1")

	m.UpdateCursor(ctx, b.ID, "u1", 5, 6, true)
	m.UpdateCursor(ctx, b.ID, "u2", 1, 2, true)
	m.UpdateCursor(ctx, b.ID, "u1", 5, 6, false)

	_, cursors, err := m.Snapshot(ctx, b.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(cursors) != 1 || cursors[0].UserID != "u2" {
		t.Fatalf("hidden cursor leaked into the snapshot: %+v", cursors)
	}

	// Showing again brings the user back.
	m.UpdateCursor(ctx, b.ID, "u1", 7, 8, true)
	_, cursors, err = m.Snapshot(ctx, b.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(cursors) != 2 {
		t.Fatalf("expected both cursors after re-show, got %+v", cursors)
	}
}

func TestClear_Self(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	b, _ := m.Create(ctx, "room1")
	stroke(t, m, b.ID, "u1")
	stroke(t, m, b.ID, "u2")
	_, before := stroke(t, m, b.ID, "u1")

	cur, removed, err := m.Clear(ctx, b.ID, "u1", ClearSelf)
	if err != nil {
		t.Fatalf("Clear self: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if len(cur.Strokes) != 1 || cur.Strokes[0].UserID != "u2" {
		t.Fatalf("u2's stroke must survive a self clear: %+v", cur.Strokes)
	}
	if cur.Version != before.Version+1 {
		t.Fatalf("a clear is exactly one version bump: %d → %d", before.Version, cur.Version)
	}
}

func TestClear_All(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	b, _ := m.Create(ctx, "room1")
	stroke(t, m, b.ID, "u1")
	_, before := stroke(t, m, b.ID, "u2")

	cur, removed, err := m.Clear(ctx, b.ID, "u1", ClearAll)
	if err != nil {
		t.Fatalf("Clear all: %v", err)
	}
	if removed != 2 || len(cur.Strokes) != 0 {
		t.Fatalf("expected an empty board, removed=%d strokes=%d", removed, len(cur.Strokes))
	}
	if cur.Version != before.Version+1 {
		t.Fatalf("a clear is exactly one version bump: %d → %d", before.Version, cur.Version)
	}
}

func TestUndo_OwnStrokeOnly(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	b, _ := m.Create(ctx, "room1")
	s1, _ := stroke(t, m, b.ID, "u1")
	s2, _ := stroke(t, m, b.ID, "u2")

	if _, err := m.Undo(ctx, b.ID, "u1", s2.ID); !errors.Is(err, ErrStrokeNotFound) {
		t.Fatalf("undoing someone else's stroke: want ErrStrokeNotFound, got %v", err)
	}
	cur, err := m.Undo(ctx, b.ID, "u1", s1.ID)
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if len(cur.Strokes) != 1 || cur.Strokes[0].ID != s2.ID {
		t.Fatalf("expected only u2's stroke to remain: %+v", cur.Strokes)
	}
	if _, err := m.Undo(ctx, b.ID, "u1", s1.ID); !errors.Is(err, ErrStrokeNotFound) {
		t.Fatalf("double undo: want ErrStrokeNotFound, got %v", err)
	}
}

func TestGet_Missing(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Get(context.Background(), "nope"); !errors.Is(err, ErrBoardNotFound) {
		t.Fatalf("want ErrBoardNotFound, got %v", err)
	}
}
