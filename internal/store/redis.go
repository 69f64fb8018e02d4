package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps any backing-store failure. Handlers map it to a 500;
// no partial mutation is assumed safe and callers may retry.
var ErrUnavailable = errors.New("vote store unavailable")

// opTimeout bounds every store round trip so a dead Redis surfaces as
// ErrUnavailable instead of a hung request.
const opTimeout = 3 * time.Second

// Key schema:
//
//	vote:item:{bvid}:voters  SET     active voter ids
//	vote:item:{bvid}:count   STRING  integer counter (string-typed in Redis)
//	vote:timeline            ZSET    member "{bvid}:{userId}", score unix millis
//	vote:items               SET     every bvid that ever received a vote
//	rl:{family}:{key}        STRING  rate-limit counter with native TTL
const (
	timelineKey = "vote:timeline"
	itemsKey    = "vote:items"
)

func votersKey(bvid string) string { return fmt.Sprintf("vote:item:%s:voters", bvid) }
func countKey(bvid string) string  { return fmt.Sprintf("vote:item:%s:count", bvid) }

// TimelineEntry is one active vote in the time-ordered index.
type TimelineEntry struct {
	BVID   string
	UserID string
	At     time.Time
}

// Store is the Redis adapter owning the canonical vote state.
type Store struct {
	rdb *redis.Client
}

// New connects to Redis and verifies the connection. Unlike the read-through
// caches elsewhere, the store is mandatory: a failed connection is fatal.
func New(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

// NewWithClient wraps an existing client (tests use miniredis-backed clients).
func NewWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.wrap(s.rdb.Ping(ctx).Err())
}

// Client exposes the underlying client for health checks. May not be nil.
func (s *Store) Client() *redis.Client { return s.rdb }

// AddVoter adds a caller to the item's active-voter set. The SADD reply is
// the dedup decision: false means the caller was already active.
func (s *Store) AddVoter(ctx context.Context, bvid, userID string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	added, err := s.rdb.SAdd(ctx, votersKey(bvid), userID).Result()
	if err != nil {
		return false, s.wrap(err)
	}
	return added == 1, nil
}

// RemoveVoter removes a caller from the active-voter set. False means the
// caller had no active vote.
func (s *Store) RemoveVoter(ctx context.Context, bvid, userID string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	removed, err := s.rdb.SRem(ctx, votersKey(bvid), userID).Result()
	if err != nil {
		return false, s.wrap(err)
	}
	return removed == 1, nil
}

func (s *Store) IsVoter(ctx context.Context, bvid, userID string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	member, err := s.rdb.SIsMember(ctx, votersKey(bvid), userID).Result()
	if err != nil {
		return false, s.wrap(err)
	}
	return member, nil
}

// VoterCount returns the active-voter set cardinality (drift reconciliation).
func (s *Store) VoterCount(ctx context.Context, bvid string) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	n, err := s.rdb.SCard(ctx, votersKey(bvid)).Result()
	if err != nil {
		return 0, s.wrap(err)
	}
	return n, nil
}

// Count reads the item counter. Redis stores it as a string; the value is
// parsed on every read and a missing key reads as 0.
func (s *Store) Count(ctx context.Context, bvid string) (int, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	raw, err := s.rdb.Get(ctx, countKey(bvid)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, s.wrap(err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("counter for %s holds non-integer %q", bvid, raw)
	}
	return n, nil
}

// SetCount overwrites the item counter (reconciliation only).
func (s *Store) SetCount(ctx context.Context, bvid string, n int64) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.wrap(s.rdb.Set(ctx, countKey(bvid), n, 0).Err())
}

// CommitVote applies the mutations paired with a successful AddVoter in one
// MULTI/EXEC round trip: counter increment, timeline insert, item tracking.
// Returns the counter value after the increment.
func (s *Store) CommitVote(ctx context.Context, bvid, userID string, at time.Time) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, countKey(bvid))
		pipe.ZAdd(ctx, timelineKey, redis.Z{
			Score:  float64(at.UnixMilli()),
			Member: timelineMember(bvid, userID),
		})
		pipe.SAdd(ctx, itemsKey, bvid)
		return nil
	})
	if err != nil {
		return 0, s.wrap(err)
	}
	return incr.Val(), nil
}

// CommitUnvote applies the mutations paired with a successful RemoveVoter:
// counter decrement and timeline removal. The counter is not clamped at
// zero; a negative value only appears under corruption and is caught by the
// reconcile worker.
func (s *Store) CommitUnvote(ctx context.Context, bvid, userID string) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var decr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		decr = pipe.Decr(ctx, countKey(bvid))
		pipe.ZRem(ctx, timelineKey, timelineMember(bvid, userID))
		return nil
	})
	if err != nil {
		return 0, s.wrap(err)
	}
	return decr.Val(), nil
}

// TimelineSince returns every active vote with a timestamp in [since, now].
func (s *Store) TimelineSince(ctx context.Context, since time.Time) ([]TimelineEntry, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	zs, err := s.rdb.ZRangeByScoreWithScores(ctx, timelineKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, s.wrap(err)
	}

	entries := make([]TimelineEntry, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		bvid, userID, ok := splitTimelineMember(member)
		if !ok {
			continue
		}
		entries = append(entries, TimelineEntry{
			BVID:   bvid,
			UserID: userID,
			At:     time.UnixMilli(int64(z.Score)),
		})
	}
	return entries, nil
}

// PruneTimeline drops index entries older than the retention horizon.
func (s *Store) PruneTimeline(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	n, err := s.rdb.ZRemRangeByScore(ctx, timelineKey, "-inf",
		"("+strconv.FormatInt(before.UnixMilli(), 10)).Result()
	if err != nil {
		return 0, s.wrap(err)
	}
	return n, nil
}

// TimelineSize returns the number of active votes in the index.
func (s *Store) TimelineSize(ctx context.Context) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	n, err := s.rdb.ZCard(ctx, timelineKey).Result()
	if err != nil {
		return 0, s.wrap(err)
	}
	return n, nil
}

// Items lists every bvid that ever received a vote.
func (s *Store) Items(ctx context.Context) ([]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	items, err := s.rdb.SMembers(ctx, itemsKey).Result()
	if err != nil {
		return nil, s.wrap(err)
	}
	return items, nil
}

// IncrLimiter increments a fixed-window rate counter, arming the window TTL
// on the first increment. Returns the post-increment count.
func (s *Store) IncrLimiter(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, s.wrap(err)
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, key, window).Err(); err != nil {
			return n, s.wrap(err)
		}
	}
	return n, nil
}

// ResetLimiter deletes a rate counter, granting a fresh window.
func (s *Store) ResetLimiter(ctx context.Context, key string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.wrap(s.rdb.Del(ctx, key).Err())
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

func (s *Store) wrap(err error) error {
	if err == nil || err == redis.Nil {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func timelineMember(bvid, userID string) string {
	return bvid + ":" + userID
}

func splitTimelineMember(member string) (bvid, userID string, ok bool) {
	i := strings.Index(member, ":")
	if i <= 0 || i == len(member)-1 {
		return "", "", false
	}
	return member[:i], member[i+1:], true
}
