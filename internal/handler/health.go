package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/bili-qml-team/bvote/internal/archive"
	"github.com/bili-qml-team/bvote/internal/store"
)

type HealthHandler struct {
	store   *store.Store
	archive *archive.Archive // optional
	startAt time.Time
}

func NewHealthHandler(st *store.Store, arc *archive.Archive) *HealthHandler {
	return &HealthHandler{
		store:   st,
		archive: arc,
		startAt: time.Now(),
	}
}

// Live handles GET /health/live — liveness probe.
func (h *HealthHandler) Live(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Ready handles GET /health/ready — readiness probe with dependency checks.
func (h *HealthHandler) Ready(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	checks := make(fiber.Map)
	overallStatus := "healthy"

	checks["redis"] = checkStore(ctx, h.store)
	if sc, ok := checks["redis"].(fiber.Map); ok && sc["status"] != "up" {
		overallStatus = "degraded"
	}

	checks["archive"] = checkArchive(ctx, h.archive)

	resp := fiber.Map{
		"status":         overallStatus,
		"checks":         checks,
		"uptime_seconds": int(time.Since(h.startAt).Seconds()),
		"version":        "1.0.0",
	}

	status := fiber.StatusOK
	if overallStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(resp)
}

func checkStore(ctx context.Context, st *store.Store) fiber.Map {
	start := time.Now()
	err := st.Ping(ctx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return fiber.Map{
			"status":     "down",
			"latency_ms": latency,
			"error":      "connection failed",
		}
	}
	return fiber.Map{
		"status":     "up",
		"latency_ms": latency,
	}
}

func checkArchive(ctx context.Context, arc *archive.Archive) fiber.Map {
	if arc == nil {
		return fiber.Map{"status": "disabled"}
	}

	start := time.Now()
	err := arc.Ping(ctx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return fiber.Map{
			"status":     "down",
			"latency_ms": latency,
			"error":      "connection failed",
		}
	}
	return fiber.Map{
		"status":     "up",
		"latency_ms": latency,
	}
}
