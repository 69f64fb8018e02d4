package handler_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v3"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/bili-qml-team/bvote/internal/captcha"
	"github.com/bili-qml-team/bvote/internal/config"
	"github.com/bili-qml-team/bvote/internal/handler"
	"github.com/bili-qml-team/bvote/internal/middleware"
	"github.com/bili-qml-team/bvote/internal/router"
	"github.com/bili-qml-team/bvote/internal/service"
	"github.com/bili-qml-team/bvote/internal/store"
)

var metricsOnce sync.Once

type testEnv struct {
	app  *fiber.App
	gate *captcha.Gate
}

func newTestEnv(t *testing.T, voteMax int) *testEnv {
	t.Helper()
	metricsOnce.Do(handler.InitMetrics)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	st := store.NewWithClient(rdb)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	gate := captcha.NewGate("test-key", 200)

	cfg := &config.Config{
		CacheTTL:       300 * time.Second,
		Retention:      30 * 24 * time.Hour,
		BoardSize:      50,
		RealtimeWindow: 12 * time.Hour,
		DailyWindow:    24 * time.Hour,
		WeeklyWindow:   7 * 24 * time.Hour,
		MonthlyWindow:  30 * 24 * time.Hour,
		VoteRateMax:    voteMax,
		VoteRateWindow: time.Minute,
		ReadRateMax:    1000,
		ReadRateWindow: time.Minute,
	}

	ledger := service.NewLedgerService(st, clock, nil)
	board := service.NewBoardService(st, clock, cfg)
	enrich := service.NewEnrichService(nil)

	app := fiber.New()
	router.Setup(app, &router.Handlers{
		Vote:    handler.NewVoteHandler(ledger, middleware.NewVoteRateLimiter(st, cfg), middleware.NewReadRateLimiter(st, cfg), gate),
		Board:   handler.NewBoardHandler(board, enrich, middleware.NewReadRateLimiter(st, cfg), gate),
		Captcha: handler.NewCaptchaHandler(gate),
		Export:  handler.NewExportHandler(nil, middleware.NewExportRateLimiter(st)),
		Health:  handler.NewHealthHandler(st, nil),
	}, "*")

	return &testEnv{app: app, gate: gate}
}

func (e *testEnv) post(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return e.do(t, req)
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	return e.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := e.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	var body map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("unmarshal response %q: %v", raw, err)
		}
	}
	return resp, body
}

func TestVoteStatusUnvoteRoundTrip(t *testing.T) {
	e := newTestEnv(t, 100)

	resp, body := e.post(t, "/vote", `{"bvid":"BV1234567890","userId":"u1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("vote status = %d, body = %v", resp.StatusCode, body)
	}
	if body["success"] != true || body["active"] != true {
		t.Errorf("vote body = %v, want success and active", body)
	}

	resp, body = e.get(t, "/status?bvid=BV1234567890&userId=u1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}
	if body["active"] != true || body["count"] != float64(1) {
		t.Errorf("status body = %v, want active with count 1", body)
	}

	resp, body = e.post(t, "/unvote", `{"bvid":"BV1234567890","userId":"u1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unvote status = %d", resp.StatusCode)
	}
	if body["active"] != false {
		t.Errorf("unvote body = %v, want active=false", body)
	}

	_, body = e.get(t, "/status?bvid=BV1234567890&userId=u1")
	if body["active"] != false || body["count"] != float64(0) {
		t.Errorf("final status body = %v, want inactive with count 0", body)
	}
}

func TestVote_DuplicateIsConflict(t *testing.T) {
	e := newTestEnv(t, 100)

	e.post(t, "/vote", `{"bvid":"BV1234567890","userId":"u1"}`)
	resp, body := e.post(t, "/vote", `{"bvid":"BV1234567890","userId":"u1"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate vote status = %d, want 409", resp.StatusCode)
	}
	if body["code"] != "ALREADY_VOTED" {
		t.Errorf("code = %v, want ALREADY_VOTED", body["code"])
	}

	// Counter increased exactly once
	_, body = e.get(t, "/status?bvid=BV1234567890")
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
}

func TestUnvote_WithoutVoteIsConflict(t *testing.T) {
	e := newTestEnv(t, 100)

	resp, body := e.post(t, "/unvote", `{"bvid":"BV1234567890","userId":"u1"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	if body["code"] != "NOT_VOTED" {
		t.Errorf("code = %v, want NOT_VOTED", body["code"])
	}
}

func TestVote_MalformedBVIDRejected(t *testing.T) {
	e := newTestEnv(t, 100)

	for _, bvid := range []string{"", "notabvid", "BV123", "AV1234567890"} {
		resp, _ := e.post(t, "/vote", `{"bvid":"`+bvid+`","userId":"u1"}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("bvid %q: status = %d, want 400", bvid, resp.StatusCode)
		}
	}
}

func TestVote_MissingUserIDRejected(t *testing.T) {
	e := newTestEnv(t, 100)

	resp, body := e.post(t, "/vote", `{"bvid":"BV1234567890"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["code"] != "INVALID_USER" {
		t.Errorf("code = %v, want INVALID_USER", body["code"])
	}
}

func TestVote_RateLimitAndCaptchaEscape(t *testing.T) {
	e := newTestEnv(t, 2)

	// Exhaust the window (conflicts still count against the limiter).
	e.post(t, "/vote", `{"bvid":"BV1234567890","userId":"u1"}`)
	e.post(t, "/unvote", `{"bvid":"BV1234567890","userId":"u1"}`)

	resp, body := e.post(t, "/vote", `{"bvid":"BV1234567890","userId":"u1"}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if body["requiresCaptcha"] != true {
		t.Errorf("body = %v, want requiresCaptcha=true", body)
	}

	// A bogus solution is rejected.
	resp, _ = e.post(t, "/vote", `{"bvid":"BV1234567890","userId":"u1","altcha":"bogus"}`)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("bogus solution status = %d, want 403", resp.StatusCode)
	}

	// Solve a real challenge; the request proceeds and the window resets.
	ch, err := e.gate.IssueChallenge()
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	sol, ok := captcha.Solve(ch)
	if !ok {
		t.Fatal("Solve failed")
	}
	payload := captcha.EncodePayload(sol)

	resp, body = e.post(t, "/vote", `{"bvid":"BV1234567890","userId":"u1","altcha":"`+payload+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("solved request status = %d, body = %v", resp.StatusCode, body)
	}

	// The very next call runs in a fresh window, no solution needed.
	resp, _ = e.post(t, "/unvote", `{"bvid":"BV1234567890","userId":"u1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("follow-up status = %d, want 200", resp.StatusCode)
	}
}

func TestStatus_AnonymousCaller(t *testing.T) {
	e := newTestEnv(t, 100)

	e.post(t, "/vote", `{"bvid":"BV1234567890","userId":"u1"}`)
	resp, body := e.get(t, "/status?bvid=BV1234567890")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["active"] != false || body["count"] != float64(1) {
		t.Errorf("body = %v, want inactive with count 1", body)
	}
}

func TestLeaderboard_EndToEnd(t *testing.T) {
	e := newTestEnv(t, 100)

	e.post(t, "/vote", `{"bvid":"BVbbbbbbbbbb","userId":"u1"}`)
	e.post(t, "/vote", `{"bvid":"BVbbbbbbbbbb","userId":"u2"}`)
	e.post(t, "/vote", `{"bvid":"BVaaaaaaaaaa","userId":"u1"}`)

	resp, body := e.get(t, "/leaderboard?range=realtime")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	list, ok := body["list"].([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("list = %v, want 2 entries", body["list"])
	}
	top := list[0].(map[string]any)
	if top["bvid"] != "BVbbbbbbbbbb" || top["count"] != float64(2) {
		t.Errorf("top entry = %v", top)
	}
}

func TestLeaderboard_UnknownRangeIsBadRequest(t *testing.T) {
	e := newTestEnv(t, 100)

	resp, body := e.get(t, "/leaderboard?range=yearly")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["code"] != "INVALID_RANGE" {
		t.Errorf("code = %v, want INVALID_RANGE", body["code"])
	}

	resp, _ = e.get(t, "/leaderboard")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing range status = %d, want 400", resp.StatusCode)
	}
}

func TestChallenge_Endpoint(t *testing.T) {
	e := newTestEnv(t, 100)

	resp, body := e.get(t, "/altcha/challenge")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, field := range []string{"algorithm", "challenge", "salt", "maxnumber", "signature"} {
		if _, ok := body[field]; !ok {
			t.Errorf("challenge missing field %q: %v", field, body)
		}
	}
	if body["algorithm"] != "SHA-256" {
		t.Errorf("algorithm = %v", body["algorithm"])
	}
}

func TestExport_DisabledArchiveIs404(t *testing.T) {
	e := newTestEnv(t, 100)

	resp, body := e.get(t, "/export")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if body["code"] != "NOT_FOUND" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestAPIResponsesDisableCaching(t *testing.T) {
	e := newTestEnv(t, 100)

	resp, _ := e.get(t, "/status?bvid=BV1234567890")
	if got := resp.Header.Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}

	resp, _ = e.get(t, "/leaderboard?range=daily")
	if got := resp.Header.Get("Cache-Control"); got != "no-store" {
		t.Errorf("leaderboard Cache-Control = %q, want no-store", got)
	}
}
