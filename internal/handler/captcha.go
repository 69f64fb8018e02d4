package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/bili-qml-team/bvote/internal/captcha"
	"github.com/bili-qml-team/bvote/internal/middleware"
)

type CaptchaHandler struct {
	gate *captcha.Gate
}

func NewCaptchaHandler(gate *captcha.Gate) *CaptchaHandler {
	return &CaptchaHandler{gate: gate}
}

// Challenge handles GET /altcha/challenge
func (h *CaptchaHandler) Challenge(c fiber.Ctx) error {
	ch, err := h.gate.IssueChallenge()
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue challenge")
	}
	Metrics.CaptchaIssued.Inc()
	return c.JSON(ch)
}
