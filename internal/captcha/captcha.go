// Package captcha issues and verifies ALTCHA-style proof-of-work challenges.
// A challenge is the SHA256 of a salted secret number; the client brute-forces
// the number within the advertised bound. Challenges are HMAC-signed so the
// server verifies solutions statelessly.
package captcha

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strconv"

	"github.com/bili-qml-team/bvote/internal/model"
	"github.com/bili-qml-team/bvote/pkg/hash"
)

const algorithm = "SHA-256"

// Gate produces and checks proof-of-work puzzles. Difficulty is the search
// space bound: the client performs up to maxNumber hash iterations.
type Gate struct {
	hmacKey   string
	maxNumber int64
}

func NewGate(hmacKey string, maxNumber int64) *Gate {
	return &Gate{hmacKey: hmacKey, maxNumber: maxNumber}
}

// IssueChallenge generates a fresh puzzle. The secret number is never sent;
// only its salted hash and the HMAC signature leave the server.
func (g *Gate) IssueChallenge() (model.Challenge, error) {
	salt, err := randomSalt()
	if err != nil {
		return model.Challenge{}, err
	}
	n, err := rand.Int(rand.Reader, big.NewInt(g.maxNumber+1))
	if err != nil {
		return model.Challenge{}, err
	}

	challenge := hash.SHA256Hex(salt + n.String())
	return model.Challenge{
		Algorithm: algorithm,
		Challenge: challenge,
		Salt:      salt,
		MaxNumber: g.maxNumber,
		Signature: hash.HMACSHA256Hex(g.hmacKey, challenge),
	}, nil
}

// VerifyPayload checks a base64-encoded JSON solution. It recomputes the
// salted hash from the claimed number and validates the HMAC signature, so
// no challenge state is consulted.
func (g *Gate) VerifyPayload(payload string) bool {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return false
	}
	var sol model.Solution
	if err := json.Unmarshal(raw, &sol); err != nil {
		return false
	}
	return g.Verify(sol)
}

// Verify validates a decoded solution.
func (g *Gate) Verify(sol model.Solution) bool {
	if sol.Algorithm != algorithm {
		return false
	}
	if sol.Number < 0 || sol.Number > g.maxNumber {
		return false
	}
	if hash.SHA256Hex(sol.Salt+strconv.FormatInt(sol.Number, 10)) != sol.Challenge {
		return false
	}
	return hash.HMACEqual(sol.Signature, hash.HMACSHA256Hex(g.hmacKey, sol.Challenge))
}

// Solve brute-forces a challenge. Exported for tests and client tooling.
func Solve(ch model.Challenge) (model.Solution, bool) {
	for n := int64(0); n <= ch.MaxNumber; n++ {
		if hash.SHA256Hex(ch.Salt+strconv.FormatInt(n, 10)) == ch.Challenge {
			return model.Solution{
				Algorithm: ch.Algorithm,
				Challenge: ch.Challenge,
				Number:    n,
				Salt:      ch.Salt,
				Signature: ch.Signature,
			}, true
		}
	}
	return model.Solution{}, false
}

// EncodePayload packs a solution the way clients submit it.
func EncodePayload(sol model.Solution) string {
	raw, _ := json.Marshal(sol)
	return base64.StdEncoding.EncodeToString(raw)
}

func randomSalt() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
