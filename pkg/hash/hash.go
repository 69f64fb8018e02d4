package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Hex returns the hex-encoded SHA256 hash of the input string.
func SHA256Hex(input string) string {
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:])
}

// HMACSHA256Hex returns the hex-encoded HMAC-SHA256 of message under key.
// Used to sign proof-of-work challenges so the server never stores them.
func HMACSHA256Hex(key, message string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// HMACEqual compares two hex-encoded MACs in constant time.
func HMACEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

// HashIPForKey produces a short, irreversible hash prefix of an IP address
// for rate-limit keys and log correlation without storing raw PII.
func HashIPForKey(ip string) string {
	return SHA256Hex(ip)[:12]
}
