package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/bili-qml-team/bvote/internal/captcha"
	"github.com/bili-qml-team/bvote/internal/middleware"
	"github.com/bili-qml-team/bvote/internal/model"
	"github.com/bili-qml-team/bvote/internal/service"
)

type BoardHandler struct {
	board   *service.BoardService
	enrich  *service.EnrichService
	limiter *middleware.RateLimiter
	gate    *captcha.Gate
}

func NewBoardHandler(board *service.BoardService, enrich *service.EnrichService, limiter *middleware.RateLimiter, gate *captcha.Gate) *BoardHandler {
	return &BoardHandler{board: board, enrich: enrich, limiter: limiter, gate: gate}
}

// Get handles GET /leaderboard?range=realtime|daily|weekly|monthly&detail=&altcha=
func (h *BoardHandler) Get(c fiber.Ctx) error {
	window := c.Query("range")
	if window == "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "MISSING_RANGE", "range query parameter is required")
	}

	if handled, err := guard(c, h.limiter, h.gate, middleware.KeyByIP(c), c.Query("altcha")); handled {
		return err
	}

	list, err := h.board.Get(c.Context(), window)
	if errors.Is(err, service.ErrUnknownWindow) {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_RANGE", "range must be one of: realtime, daily, weekly, monthly")
	}
	if err != nil {
		return storeError(c, err)
	}

	// Enrichment happens after ranking and never fails the response.
	if wantDetail(c.Query("detail")) {
		list = h.enrich.Enrich(c.Context(), list)
	}

	if list == nil {
		list = []model.BoardEntry{}
	}
	return c.JSON(model.BoardResponse{Success: true, Range: window, List: list})
}

func wantDetail(v string) bool {
	return v == "1" || v == "true"
}
