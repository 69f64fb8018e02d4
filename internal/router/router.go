package router

import (
	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/bili-qml-team/bvote/internal/handler"
	"github.com/bili-qml-team/bvote/internal/middleware"
)

// Handlers holds all handler instances needed by the router.
type Handlers struct {
	Vote    *handler.VoteHandler
	Board   *handler.BoardHandler
	Captcha *handler.CaptchaHandler
	Export  *handler.ExportHandler
	Health  *handler.HealthHandler
}

// Setup configures the middleware stack and all routes on the given Fiber app.
func Setup(app *fiber.App, h *Handlers, corsOrigins string) {
	// Middleware stack (order matters)
	app.Use(recoverer.New())
	app.Use(middleware.NewRequestLogger())
	app.Use(handler.MetricsMiddleware())
	app.Use(middleware.NewCORS(corsOrigins))

	// API responses reflect per-call state; forbid intermediary caching.
	for _, p := range []string{"/vote", "/unvote", "/status", "/leaderboard", "/altcha", "/export"} {
		app.Use(p, middleware.NoStore())
	}

	// Ops endpoints
	app.Get("/health/live", h.Health.Live)
	app.Get("/health/ready", h.Health.Ready)
	app.Get("/metrics", handler.MetricsHandler())

	// Static
	app.Get("/robots.txt", handler.Robots)
	app.Get("/favicon.ico", handler.Favicon)

	// CAPTCHA
	app.Get("/altcha/challenge", h.Captcha.Challenge)

	// Ledger
	app.Post("/vote", h.Vote.Vote)
	app.Post("/unvote", h.Vote.Unvote)
	app.Get("/status", h.Vote.Status)

	// Leaderboard
	app.Get("/leaderboard", h.Board.Get)

	// Archive export
	app.Get("/export", h.Export.Export)
}
