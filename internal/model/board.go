package model

import "time"

// Window names accepted by the leaderboard endpoint.
const (
	WindowRealtime = "realtime"
	WindowDaily    = "daily"
	WindowWeekly   = "weekly"
	WindowMonthly  = "monthly"
)

// WindowNames lists the four windows in their canonical order.
var WindowNames = []string{WindowRealtime, WindowDaily, WindowWeekly, WindowMonthly}

// WindowWidths maps each window name to its lookback duration.
type WindowWidths struct {
	Realtime time.Duration
	Daily    time.Duration
	Weekly   time.Duration
	Monthly  time.Duration
}

// Width returns the lookback duration for a window name, false if unknown.
func (w WindowWidths) Width(name string) (time.Duration, bool) {
	switch name {
	case WindowRealtime:
		return w.Realtime, true
	case WindowDaily:
		return w.Daily, true
	case WindowWeekly:
		return w.Weekly, true
	case WindowMonthly:
		return w.Monthly, true
	}
	return 0, false
}

// BoardEntry is one ranked item. Title/Owner/Cover are filled only when the
// caller asked for enrichment and the catalog lookup succeeded.
type BoardEntry struct {
	BVID  string `json:"bvid"`
	Count int    `json:"count"`
	Title string `json:"title,omitempty"`
	Owner string `json:"owner,omitempty"`
	Cover string `json:"cover,omitempty"`
}

// BoardResponse is the leaderboard API response.
type BoardResponse struct {
	Success bool         `json:"success"`
	Range   string       `json:"range"`
	List    []BoardEntry `json:"list"`
}
