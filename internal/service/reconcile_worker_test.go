package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/bili-qml-team/bvote/internal/store"
)

func newTestReconciler(t *testing.T) (*ReconcileWorker, *store.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	st := store.NewWithClient(rdb)
	clock := clockwork.NewFakeClock()
	return NewReconcileWorker(st, clock, 10*time.Minute, 30*24*time.Hour), st, mr
}

func TestReconcile_NoDriftIsNoOp(t *testing.T) {
	w, st, _ := newTestReconciler(t)
	ctx := context.Background()

	st.AddVoter(ctx, "BV1234567890", "u1")
	st.CommitVote(ctx, "BV1234567890", "u1", time.Now())

	repaired, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if repaired != 0 {
		t.Errorf("repaired = %d, want 0", repaired)
	}

	count, _ := st.Count(ctx, "BV1234567890")
	if count != 1 {
		t.Errorf("count = %d, want 1 (untouched)", count)
	}
}

func TestReconcile_RepairsCounterDrift(t *testing.T) {
	w, st, mr := newTestReconciler(t)
	ctx := context.Background()

	st.AddVoter(ctx, "BV1234567890", "u1")
	st.CommitVote(ctx, "BV1234567890", "u1", time.Now())
	st.AddVoter(ctx, "BV1234567890", "u2")
	st.CommitVote(ctx, "BV1234567890", "u2", time.Now())

	// Simulate a half-applied mutation: counter diverged from set cardinality.
	mr.Set("vote:item:BV1234567890:count", "7")

	repaired, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if repaired != 1 {
		t.Errorf("repaired = %d, want 1", repaired)
	}

	count, _ := st.Count(ctx, "BV1234567890")
	if count != 2 {
		t.Errorf("count after repair = %d, want 2", count)
	}
}

func TestReconcile_RewritesGarbledCounter(t *testing.T) {
	w, st, mr := newTestReconciler(t)
	ctx := context.Background()

	st.AddVoter(ctx, "BV1234567890", "u1")
	st.CommitVote(ctx, "BV1234567890", "u1", time.Now())
	mr.Set("vote:item:BV1234567890:count", "garbage")

	repaired, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if repaired != 1 {
		t.Errorf("repaired = %d, want 1", repaired)
	}

	count, _ := st.Count(ctx, "BV1234567890")
	if count != 1 {
		t.Errorf("count after rewrite = %d, want 1", count)
	}
}
