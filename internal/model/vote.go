package model

import "time"

// VoteRequest is the API request body for casting or withdrawing a vote.
// Altcha carries an optional base64 proof-of-work payload used to lift a
// rate limit.
type VoteRequest struct {
	BVID   string `json:"bvid"`
	UserID string `json:"userId"`
	Altcha string `json:"altcha,omitempty"`
}

// VoteResponse is the API response after a vote or unvote.
type VoteResponse struct {
	Success bool `json:"success"`
	Active  bool `json:"active"`
	Count   int  `json:"count"`
}

// StatusResponse reports the caller's toggle state and the item counter.
// Count is always present, 0 for items never voted on.
type StatusResponse struct {
	Success bool `json:"success"`
	Active  bool `json:"active"`
	Count   int  `json:"count"`
}

// VoteEvent is an archived ledger mutation (optional Postgres archive).
type VoteEvent struct {
	ID        int64     `json:"id"`
	BVID      string    `json:"bvid"`
	UserID    string    `json:"userId"`
	Action    string    `json:"action"` // "vote" or "unvote"
	CreatedAt time.Time `json:"createdAt"`
}
