package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/playroom/internal/obslog"
)

// Prober answers whether a connection id is still a live transport-level
// connection. Implemented by the websocket server.
type Prober interface {
	Alive(ctx context.Context, connID uuid.UUID) bool
}

// Reconciler periodically sweeps the tracker against the transport layer and
// prunes ghost connections left behind by missed disconnect notifications.
// When pruning empties a user's set it is treated exactly like a natural
// last-disconnect: the offline projection is persisted and onOffline fires.
type Reconciler struct {
	tracker   *Tracker
	prober    Prober
	interval  time.Duration
	onOffline func(userID string)

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func NewReconciler(tracker *Tracker, prober Prober, interval time.Duration, onOffline func(userID string)) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reconciler{
		tracker:   tracker,
		prober:    prober,
		interval:  interval,
		onOffline: onOffline,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Run blocks until Stop. Meant for a dedicated goroutine.
func (r *Reconciler) Run() {
	defer close(r.done)
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-t.C:
			r.Sweep(context.Background())
		}
	}
}

func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.done
}

// Sweep runs one reconciliation pass. Failures are logged only; this is
// background maintenance, not a user-initiated action.
func (r *Reconciler) Sweep(ctx context.Context) {
	snapshot := r.tracker.Snapshot()
	pruned := 0
	for userID, connIDs := range snapshot {
		for _, connID := range connIDs {
			if r.prober.Alive(ctx, connID) {
				continue
			}
			pruned++
			if becameOffline := r.tracker.Detach(ctx, userID, connID); becameOffline {
				obslog.L().Info("presence_reconcile_offline",
					zap.String("user_id", userID),
					zap.String("conn_id", connID.String()),
				)
				if r.onOffline != nil {
					r.onOffline(userID)
				}
			}
		}
	}
	if pruned > 0 {
		obslog.L().Info("presence_reconcile_sweep", zap.Int("pruned", pruned), zap.Int("users_checked", len(snapshot)))
	}
}
