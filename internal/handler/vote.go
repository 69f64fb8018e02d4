package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/bili-qml-team/bvote/internal/captcha"
	"github.com/bili-qml-team/bvote/internal/middleware"
	"github.com/bili-qml-team/bvote/internal/model"
	"github.com/bili-qml-team/bvote/internal/service"
	"github.com/bili-qml-team/bvote/internal/store"
)

type VoteHandler struct {
	ledger  *service.LedgerService
	limiter *middleware.RateLimiter // mutating family
	reads   *middleware.RateLimiter // read family (status)
	gate    *captcha.Gate
}

func NewVoteHandler(ledger *service.LedgerService, limiter, reads *middleware.RateLimiter, gate *captcha.Gate) *VoteHandler {
	return &VoteHandler{ledger: ledger, limiter: limiter, reads: reads, gate: gate}
}

// Vote handles POST /vote
func (h *VoteHandler) Vote(c fiber.Ctx) error {
	return h.mutate(c, "vote")
}

// Unvote handles POST /unvote
func (h *VoteHandler) Unvote(c fiber.Ctx) error {
	return h.mutate(c, "unvote")
}

func (h *VoteHandler) mutate(c fiber.Ctx, action string) error {
	var req model.VoteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}

	bvid, errMsg := middleware.ValidateBVID(req.BVID)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BVID", errMsg)
	}
	userID, errMsg := middleware.ValidateUserID(req.UserID)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_USER", errMsg)
	}

	if handled, err := guard(c, h.limiter, h.gate, middleware.KeyByCaller(c, userID), req.Altcha); handled {
		return err
	}

	var count int
	var err error
	active := action == "vote"
	if active {
		count, err = h.ledger.Vote(c.Context(), bvid, userID)
	} else {
		count, err = h.ledger.Unvote(c.Context(), bvid, userID)
	}
	switch {
	case errors.Is(err, service.ErrAlreadyVoted):
		return middleware.ErrorResponse(c, fiber.StatusConflict, "ALREADY_VOTED", "You already have an active vote for this video")
	case errors.Is(err, service.ErrNotVoted):
		return middleware.ErrorResponse(c, fiber.StatusConflict, "NOT_VOTED", "You have no active vote for this video")
	case err != nil:
		return storeError(c, err)
	}

	Metrics.VotesTotal.WithLabelValues(action).Inc()
	return c.JSON(model.VoteResponse{Success: true, Active: active, Count: count})
}

// Status handles GET /status?bvid=&userId=
// userId may be empty: anonymous callers get active=false with the counter.
func (h *VoteHandler) Status(c fiber.Ctx) error {
	bvid, errMsg := middleware.ValidateBVID(c.Query("bvid"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BVID", errMsg)
	}

	userID := c.Query("userId")
	if userID != "" {
		var uErr string
		userID, uErr = middleware.ValidateUserID(userID)
		if uErr != "" {
			return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_USER", uErr)
		}
	}

	if handled, err := guard(c, h.reads, h.gate, middleware.KeyByCaller(c, userID), c.Query("altcha")); handled {
		return err
	}

	status, err := h.ledger.Status(c.Context(), bvid, userID)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(status)
}

// guard applies the abuse-control policy: count the request, and when the
// window is exhausted either verify an accompanying proof-of-work solution
// (resetting the window on success) or tell the caller to solve one. When
// handled is true a response has already been written.
func guard(c fiber.Ctx, rl *middleware.RateLimiter, gate *captcha.Gate, key, altchaPayload string) (handled bool, err error) {
	limited, err := rl.CheckAndIncrement(c.Context(), key)
	if err != nil {
		return true, storeError(c, err)
	}
	if !limited {
		return false, nil
	}

	Metrics.RateLimitedTotal.Inc()
	if altchaPayload == "" {
		return true, middleware.CaptchaRequiredResponse(c, "Too many requests. Solve a challenge to continue.")
	}
	if !gate.VerifyPayload(altchaPayload) {
		Metrics.CaptchaVerified.WithLabelValues("invalid").Inc()
		return true, middleware.ErrorResponse(c, fiber.StatusForbidden, "INVALID_CAPTCHA", "Proof-of-work solution is invalid")
	}
	Metrics.CaptchaVerified.WithLabelValues("valid").Inc()

	if err := rl.Reset(c.Context(), key); err != nil {
		return true, storeError(c, err)
	}
	return false, nil
}

// storeError maps backing-store failures to a 500; everything else on this
// path is already a typed conflict, so an unknown error is treated the same.
func storeError(c fiber.Ctx, err error) error {
	if errors.Is(err, store.ErrUnavailable) {
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "STORE_UNAVAILABLE", "Vote store is unavailable, try again later")
	}
	return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Request failed")
}
