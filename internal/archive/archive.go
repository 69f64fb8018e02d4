// Package archive keeps an append-only Postgres log of ledger mutations.
// The Redis store owns canonical state; the archive exists for offline
// analysis and the /export endpoint, and every write is best-effort.
package archive

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bili-qml-team/bvote/internal/model"
)

const (
	maxRetries    = 5
	retryInterval = 2 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS vote_events (
	id         BIGSERIAL PRIMARY KEY,
	bvid       VARCHAR(12) NOT NULL,
	user_id    VARCHAR(64) NOT NULL,
	action     VARCHAR(8)  NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vote_events_created_at ON vote_events (created_at);`

// Archive is the Postgres-backed event log.
type Archive struct {
	pool *pgxpool.Pool
}

// New connects with retries and ensures the events table exists.
func New(ctx context.Context, databaseURL string) (*Archive, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= maxRetries; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, config)
		if err == nil {
			if pingErr := pool.Ping(ctx); pingErr == nil {
				break
			} else {
				pool.Close()
				pool = nil
				err = pingErr
			}
		}

		log.Printf("archive: connection attempt %d/%d failed: %v", attempt, maxRetries, err)
		if attempt < maxRetries {
			time.Sleep(retryInterval)
		}
	}
	if pool == nil {
		return nil, fmt.Errorf("archive connection failed after %d attempts: %w", maxRetries, err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure vote_events table: %w", err)
	}

	log.Println("archive: connected")
	return &Archive{pool: pool}, nil
}

func (a *Archive) Close() {
	a.pool.Close()
}

func (a *Archive) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

// Record appends one ledger mutation.
func (a *Archive) Record(ctx context.Context, bvid, userID, action string, at time.Time) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO vote_events (bvid, user_id, action, created_at)
		VALUES ($1, $2, $3, $4)`,
		bvid, userID, action, at)
	return err
}

// Recent returns the newest events, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]model.VoteEvent, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT id, bvid, user_id, action, created_at
		FROM vote_events
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.VoteEvent
	for rows.Next() {
		var e model.VoteEvent
		if err := rows.Scan(&e.ID, &e.BVID, &e.UserID, &e.Action, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
