package service

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/bili-qml-team/bvote/internal/config"
	"github.com/bili-qml-team/bvote/internal/model"
	"github.com/bili-qml-team/bvote/internal/store"
)

// ErrUnknownWindow rejects window names outside the four fixed lookbacks.
var ErrUnknownWindow = errors.New("unknown leaderboard window")

// BoardService computes top-N rankings over the four sliding windows and
// memoizes them behind one shared expiry timestamp. A single recomputation
// refreshes all four windows; concurrent requests hitting the expiry are
// collapsed into one in-flight recomputation.
type BoardService struct {
	store     *store.Store
	clock     clockwork.Clock
	ttl       time.Duration
	retention time.Duration
	widths    model.WindowWidths
	size      int

	sf singleflight.Group

	mu      sync.RWMutex
	entries map[string][]model.BoardEntry
	expiry  time.Time
}

func NewBoardService(s *store.Store, clock clockwork.Clock, cfg *config.Config) *BoardService {
	return &BoardService{
		store:     s,
		clock:     clock,
		ttl:       cfg.CacheTTL,
		retention: cfg.Retention,
		widths: model.WindowWidths{
			Realtime: cfg.RealtimeWindow,
			Daily:    cfg.DailyWindow,
			Weekly:   cfg.WeeklyWindow,
			Monthly:  cfg.MonthlyWindow,
		},
		size:    cfg.BoardSize,
		entries: make(map[string][]model.BoardEntry),
	}
}

// Get returns the ranked list for one window, recomputing all four when the
// shared expiry has passed. The returned slice is a copy; callers may append
// enrichment data without touching the cache.
func (b *BoardService) Get(ctx context.Context, window string) ([]model.BoardEntry, error) {
	if _, ok := b.widths.Width(window); !ok {
		return nil, ErrUnknownWindow
	}

	if list, ok := b.cached(window); ok {
		return list, nil
	}

	_, err, _ := b.sf.Do("recompute", func() (interface{}, error) {
		return nil, b.recompute(ctx)
	})
	if err != nil {
		return nil, err
	}

	list, _ := b.cached(window)
	return list, nil
}

// cached returns a copy of the window's list while the shared expiry holds.
func (b *BoardService) cached(window string) ([]model.BoardEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.clock.Now().Before(b.expiry) {
		return nil, false
	}
	src := b.entries[window]
	out := make([]model.BoardEntry, len(src))
	copy(out, src)
	return out, true
}

// recompute prunes the timeline, rescans it once, and tallies every active
// vote into each window whose cutoff it passes. Losers of the singleflight
// race re-enter here and return early on the freshness check.
func (b *BoardService) recompute(ctx context.Context) error {
	now := b.clock.Now()

	b.mu.RLock()
	fresh := now.Before(b.expiry)
	b.mu.RUnlock()
	if fresh {
		return nil
	}

	// Maintenance, not correctness: windows never look past the horizon.
	if pruned, err := b.store.PruneTimeline(ctx, now.Add(-b.retention)); err != nil {
		return err
	} else if pruned > 0 {
		log.Printf("leaderboard: pruned %d timeline entries past retention", pruned)
	}

	votes, err := b.store.TimelineSince(ctx, now.Add(-b.retention))
	if err != nil {
		return err
	}

	cutoffs := map[string]time.Time{
		model.WindowRealtime: now.Add(-b.widths.Realtime),
		model.WindowDaily:    now.Add(-b.widths.Daily),
		model.WindowWeekly:   now.Add(-b.widths.Weekly),
		model.WindowMonthly:  now.Add(-b.widths.Monthly),
	}

	tallies := make(map[string]map[string]int, len(cutoffs))
	for _, name := range model.WindowNames {
		tallies[name] = make(map[string]int)
	}
	for _, v := range votes {
		for name, cutoff := range cutoffs {
			if !v.At.Before(cutoff) {
				tallies[name][v.BVID]++
			}
		}
	}

	entries := make(map[string][]model.BoardEntry, len(tallies))
	for name, tally := range tallies {
		entries[name] = rank(tally, b.size)
	}

	b.mu.Lock()
	b.entries = entries
	b.expiry = now.Add(b.ttl)
	b.mu.Unlock()
	return nil
}

// rank orders a tally descending by count, breaking ties by ascending bvid
// so repeated recomputations are byte-identical, then truncates to limit.
func rank(tally map[string]int, limit int) []model.BoardEntry {
	list := make([]model.BoardEntry, 0, len(tally))
	for bvid, count := range tally {
		list = append(list, model.BoardEntry{BVID: bvid, Count: count})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Count != list[j].Count {
			return list[i].Count > list[j].Count
		}
		return list[i].BVID < list[j].BVID
	})
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}
