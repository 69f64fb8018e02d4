package service

import (
	"context"
	"log"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/bili-qml-team/bvote/internal/store"
)

// ReconcileWorker periodically repairs counter drift. The counter and the
// active-voter set are updated as a pair but not in one atomic unit, so a
// failed half-write leaves them diverged; this worker recomputes every
// counter from its set cardinality on a fixed tick. It also prunes the
// timeline past the retention horizon between leaderboard recomputes.
type ReconcileWorker struct {
	store     *store.Store
	clock     clockwork.Clock
	interval  time.Duration
	retention time.Duration
}

func NewReconcileWorker(s *store.Store, clock clockwork.Clock, interval, retention time.Duration) *ReconcileWorker {
	return &ReconcileWorker{store: s, clock: clock, interval: interval, retention: retention}
}

// Start runs the reconcile loop until the context is cancelled.
func (w *ReconcileWorker) Start(ctx context.Context) {
	log.Printf("reconcile-worker: starting (interval=%s)", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				log.Printf("reconcile-worker: pass failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("reconcile-worker: stopping (context cancelled)")
			return
		}
	}
}

// RunOnce executes one reconciliation pass and returns how many counters
// were repaired.
func (w *ReconcileWorker) RunOnce(ctx context.Context) (int, error) {
	if _, err := w.store.PruneTimeline(ctx, w.clock.Now().Add(-w.retention)); err != nil {
		return 0, err
	}

	items, err := w.store.Items(ctx)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, bvid := range items {
		card, err := w.store.VoterCount(ctx, bvid)
		if err != nil {
			return repaired, err
		}
		count, err := w.store.Count(ctx, bvid)
		if err != nil {
			// A garbled counter is itself drift: rewrite it from the set.
			log.Printf("reconcile-worker: unreadable counter for %s, rewriting: %v", bvid, err)
			count = -1
		}
		if int64(count) == card {
			continue
		}
		log.Printf("reconcile-worker: counter drift for %s (counter=%d set=%d), repairing", bvid, count, card)
		if err := w.store.SetCount(ctx, bvid, card); err != nil {
			return repaired, err
		}
		repaired++
	}

	if repaired > 0 {
		log.Printf("reconcile-worker: pass complete — %d counters repaired (from %d items)", repaired, len(items))
	}
	return repaired, nil
}
