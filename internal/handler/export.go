package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/bili-qml-team/bvote/internal/archive"
	"github.com/bili-qml-team/bvote/internal/middleware"
)

const exportLimit = 1000

type ExportHandler struct {
	archive *archive.Archive // nil when the archive is disabled
	limiter *middleware.RateLimiter
}

func NewExportHandler(arc *archive.Archive, limiter *middleware.RateLimiter) *ExportHandler {
	return &ExportHandler{archive: arc, limiter: limiter}
}

// Export handles GET /export — the newest archived ledger events as JSON.
func (h *ExportHandler) Export(c fiber.Ctx) error {
	if h.archive == nil {
		return middleware.ErrorResponse(c, fiber.StatusNotFound, "NOT_FOUND", "Archive is not enabled on this deployment")
	}

	limited, err := h.limiter.CheckAndIncrement(c.Context(), middleware.KeyByIP(c))
	if err != nil {
		return storeError(c, err)
	}
	if limited {
		return middleware.ErrorResponse(c, fiber.StatusTooManyRequests, "RATE_LIMITED", "Export allowed once per hour")
	}

	events, err := h.archive.Recent(c.Context(), exportLimit)
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read archive")
	}
	return c.JSON(fiber.Map{"success": true, "events": events})
}
