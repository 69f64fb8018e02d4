package service

import (
	"context"
	"errors"
	"log"

	"github.com/jonboulle/clockwork"

	"github.com/bili-qml-team/bvote/internal/archive"
	"github.com/bili-qml-team/bvote/internal/model"
	"github.com/bili-qml-team/bvote/internal/store"
)

// Ledger state conflicts. Surfaced as 4xx; the caller resyncs via Status.
var (
	ErrAlreadyVoted = errors.New("caller already has an active vote for this item")
	ErrNotVoted     = errors.New("caller has no active vote for this item")
)

// LedgerService enforces at-most-one-active-vote per (item, caller) and keeps
// the item counter in lockstep with the active-voter set.
type LedgerService struct {
	store   *store.Store
	clock   clockwork.Clock
	archive *archive.Archive // nil when DATABASE_URL is unset
}

func NewLedgerService(s *store.Store, clock clockwork.Clock, arc *archive.Archive) *LedgerService {
	return &LedgerService{store: s, clock: clock, archive: arc}
}

// Vote records an active vote. The set add is the atomic dedup decision; the
// counter increment and timeline insert follow as one pipelined commit, so
// the cardinality invariant only breaks if the commit round trip fails after
// the membership already landed. That gap is logged and repaired by the
// reconcile worker rather than silently tolerated.
func (s *LedgerService) Vote(ctx context.Context, bvid, userID string) (int, error) {
	added, err := s.store.AddVoter(ctx, bvid, userID)
	if err != nil {
		return 0, err
	}
	if !added {
		return 0, ErrAlreadyVoted
	}

	count, err := s.store.CommitVote(ctx, bvid, userID, s.clock.Now())
	if err != nil {
		log.Printf("ledger: vote commit failed for %s after membership add (counter drift until reconcile): %v", bvid, err)
		return 0, err
	}

	s.archiveEvent(ctx, bvid, userID, "vote")
	return int(count), nil
}

// Unvote withdraws an active vote. Mirrors Vote: the set removal decides,
// the pipelined commit decrements and drops the timeline entry. The counter
// is not clamped at zero.
func (s *LedgerService) Unvote(ctx context.Context, bvid, userID string) (int, error) {
	removed, err := s.store.RemoveVoter(ctx, bvid, userID)
	if err != nil {
		return 0, err
	}
	if !removed {
		return 0, ErrNotVoted
	}

	count, err := s.store.CommitUnvote(ctx, bvid, userID)
	if err != nil {
		log.Printf("ledger: unvote commit failed for %s after membership removal (counter drift until reconcile): %v", bvid, err)
		return 0, err
	}

	s.archiveEvent(ctx, bvid, userID, "unvote")
	return int(count), nil
}

// Status reports the caller's toggle state and the item counter. An empty
// caller id is reported inactive without a membership round trip; the
// counter is returned unconditionally, 0 when the item was never voted on.
func (s *LedgerService) Status(ctx context.Context, bvid, userID string) (*model.StatusResponse, error) {
	active := false
	if userID != "" {
		var err error
		active, err = s.store.IsVoter(ctx, bvid, userID)
		if err != nil {
			return nil, err
		}
	}

	count, err := s.store.Count(ctx, bvid)
	if err != nil {
		return nil, err
	}

	return &model.StatusResponse{Success: true, Active: active, Count: count}, nil
}

// archiveEvent appends the mutation to the Postgres archive. Best-effort:
// the ledger never fails a request over archive trouble.
func (s *LedgerService) archiveEvent(ctx context.Context, bvid, userID, action string) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Record(ctx, bvid, userID, action, s.clock.Now()); err != nil {
		log.Printf("archive: record %s event error: %v", action, err)
	}
}
