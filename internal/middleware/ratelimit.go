package middleware

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/bili-qml-team/bvote/internal/config"
	"github.com/bili-qml-team/bvote/internal/store"
	"github.com/bili-qml-team/bvote/pkg/hash"
)

// RateLimiter is a fixed-window request counter backed by the vote store.
// Counters live in Redis under "rl:{family}:{key}" with the window as native
// TTL, so limits survive restarts and are shared across replicas. Fixed
// windows admit up to 2x the nominal rate across a boundary; that is the
// accepted trade-off for O(1) state per caller.
type RateLimiter struct {
	store  *store.Store
	family string
	max    int
	window time.Duration
}

func NewRateLimiter(s *store.Store, family string, max int, window time.Duration) *RateLimiter {
	return &RateLimiter{store: s, family: family, max: max, window: window}
}

// CheckAndIncrement counts the request and reports whether the caller has
// exceeded the window's budget. The first increment of a window arms its TTL.
func (rl *RateLimiter) CheckAndIncrement(ctx context.Context, key string) (bool, error) {
	n, err := rl.store.IncrLimiter(ctx, rl.limiterKey(key), rl.window)
	if err != nil {
		return false, err
	}
	return n > int64(rl.max), nil
}

// Reset deletes the caller's counter, granting a fresh window. Called after a
// verified proof-of-work solution.
func (rl *RateLimiter) Reset(ctx context.Context, key string) error {
	return rl.store.ResetLimiter(ctx, rl.limiterKey(key))
}

// Max returns the window budget (for response headers).
func (rl *RateLimiter) Max() int { return rl.max }

func (rl *RateLimiter) limiterKey(key string) string {
	return "rl:" + rl.family + ":" + key
}

// KeyByCaller rate-limits on the caller identity when present, falling back
// to a hashed IP for anonymous reads.
func KeyByCaller(c fiber.Ctx, userID string) string {
	if userID != "" {
		return "user:" + userID
	}
	return "ip:" + hash.HashIPForKey(c.IP())
}

// KeyByIP rate-limits on the hashed client IP.
func KeyByIP(c fiber.Ctx) string {
	return "ip:" + hash.HashIPForKey(c.IP())
}

// --- Pre-configured limiters for the two endpoint families ---

// NewVoteRateLimiter guards the mutating family (/vote, /unvote).
func NewVoteRateLimiter(s *store.Store, cfg *config.Config) *RateLimiter {
	return NewRateLimiter(s, "vote", cfg.VoteRateMax, cfg.VoteRateWindow)
}

// NewReadRateLimiter guards the read family (/status, /leaderboard).
func NewReadRateLimiter(s *store.Store, cfg *config.Config) *RateLimiter {
	return NewRateLimiter(s, "read", cfg.ReadRateMax, cfg.ReadRateWindow)
}

// NewExportRateLimiter guards the archive export: 1 req/hour per IP.
func NewExportRateLimiter(s *store.Store) *RateLimiter {
	return NewRateLimiter(s, "export", 1, time.Hour)
}
