package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/playroom/internal/obslog"
)

// Tracker reference-counts live connections per user. A user is online iff
// their connection set is non-empty; only the first attach and the last
// detach are presence transitions. The registry is owned, mutex-guarded
// state, never package-global.
type Tracker struct {
	mu    sync.RWMutex
	conns map[string]map[uuid.UUID]time.Time // userID → connID → attachedAt

	store *Store
}

func NewTracker(store *Store) *Tracker {
	return &Tracker{conns: make(map[string]map[uuid.UUID]time.Time), store: store}
}

// Attach registers a connection under a user. Returns true when the user had
// no connections before, i.e. this attach flipped them online. The projection
// write happens exactly once per online transition so tab duplication and
// reconnects cause no redundant writes.
func (t *Tracker) Attach(ctx context.Context, userID, userName string, connID uuid.UUID) bool {
	t.mu.Lock()
	set, ok := t.conns[userID]
	if !ok {
		set = make(map[uuid.UUID]time.Time)
		t.conns[userID] = set
	}
	wasOffline := len(set) == 0
	set[connID] = time.Now()
	t.mu.Unlock()

	if wasOffline {
		t.persist(ctx, userID, userName, true)
	}
	obslog.L().Debug("presence_attach",
		zap.String("user_id", userID),
		zap.String("conn_id", connID.String()),
		zap.Bool("was_offline", wasOffline),
	)
	return wasOffline
}

// Detach removes a connection. Returns true when the set became empty and
// the user flipped offline.
func (t *Tracker) Detach(ctx context.Context, userID string, connID uuid.UUID) bool {
	t.mu.Lock()
	set, ok := t.conns[userID]
	if !ok {
		t.mu.Unlock()
		return false
	}
	if _, attached := set[connID]; !attached {
		t.mu.Unlock()
		return false
	}
	delete(set, connID)
	becameOffline := len(set) == 0
	if becameOffline {
		delete(t.conns, userID)
	}
	t.mu.Unlock()

	if becameOffline {
		t.persist(ctx, userID, "", false)
	}
	obslog.L().Debug("presence_detach",
		zap.String("user_id", userID),
		zap.String("conn_id", connID.String()),
		zap.Bool("became_offline", becameOffline),
	)
	return becameOffline
}

// GoOffline forcibly clears every connection for the user. Used when the
// client signals departure explicitly instead of relying on transport-level
// disconnect. Always persists offline. Returns the cleared connection ids.
func (t *Tracker) GoOffline(ctx context.Context, userID string) []uuid.UUID {
	t.mu.Lock()
	set := t.conns[userID]
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	delete(t.conns, userID)
	t.mu.Unlock()

	t.persist(ctx, userID, "", false)
	obslog.L().Info("presence_go_offline", zap.String("user_id", userID), zap.Int("cleared", len(ids)))
	return ids
}

// IsOnline reports whether the user's connection set is non-empty.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns[userID]) > 0
}

// Connections returns the live connection ids for a user.
func (t *Tracker) Connections(userID string) []uuid.UUID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set := t.conns[userID]
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot returns every user with a non-empty connection set. Used by the
// reconciler sweep.
func (t *Tracker) Snapshot() map[string][]uuid.UUID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string][]uuid.UUID, len(t.conns))
	for userID, set := range t.conns {
		ids := make([]uuid.UUID, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		out[userID] = ids
	}
	return out
}

// persist writes the online/offline projection. Failures are logged, never
// surfaced: presence is maintenance state and self-corrects on the next
// transition.
func (t *Tracker) persist(ctx context.Context, userID, userName string, online bool) {
	if t.store == nil {
		return
	}
	if err := t.store.SetOnline(ctx, userID, userName, online); err != nil {
		obslog.L().Warn("presence_projection_error",
			zap.String("user_id", userID),
			zap.Bool("online", online),
			zap.Error(err),
		)
	}
}
