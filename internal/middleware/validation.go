package middleware

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v3"
)

const (
	// MaxUserIDLen bounds the opaque caller identity. The id is whatever the
	// client derived from its login cookie or generated pseudo-id; the server
	// only needs it stable enough to dedup one vote per human.
	MaxUserIDLen = 64
)

// bvidRe matches Bilibili video ids: "BV" followed by exactly 10 alphanumerics.
var bvidRe = regexp.MustCompile(`^BV[a-zA-Z0-9]{10}$`)

// ErrorResponse returns the flat API error envelope. requiresCaptcha is set
// separately by CaptchaRequiredResponse so clients know to solve a challenge.
func ErrorResponse(c fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"code":    code,
		"error":   message,
	})
}

// CaptchaRequiredResponse rejects a rate-limited request and signals that a
// proof-of-work solution must accompany the retry.
func CaptchaRequiredResponse(c fiber.Ctx, message string) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"success":         false,
		"code":            "RATE_LIMITED",
		"error":           message,
		"requiresCaptcha": true,
	})
}

// ValidateBVID checks that an item id is a well-formed bvid.
func ValidateBVID(id string) (string, string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "bvid is required"
	}
	if !bvidRe.MatchString(id) {
		return "", "bvid must match BV followed by 10 alphanumeric characters"
	}
	return id, ""
}

// ValidateUserID checks the opaque caller identity: non-empty, bounded,
// printable ASCII without whitespace.
func ValidateUserID(id string) (string, string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "userId is required"
	}
	if len(id) > MaxUserIDLen {
		return "", "userId must be at most 64 characters"
	}
	for _, r := range id {
		if r <= 0x20 || r > 0x7e {
			return "", "userId contains invalid characters"
		}
	}
	return id, ""
}
