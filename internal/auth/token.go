// Package auth generates opaque bearer tokens for the Auth Facade.
package auth

import (
	"crypto/rand"
	"encoding/hex"
)

// TokenGenerator produces opaque, cryptographically random bearer tokens.
// Unlike the nonce this is adapted from, a token never needs to be
// orderable or replay-checked by timestamp: it only needs to be
// unguessable, so no timestamp/counter encoding is kept.
type TokenGenerator struct {
	byteLen int
}

// NewTokenGenerator creates a TokenGenerator producing tokens of the given
// byte length before hex encoding (default 32 if n <= 0).
func NewTokenGenerator(n int) *TokenGenerator {
	if n <= 0 {
		n = 32
	}
	return &TokenGenerator{byteLen: n}
}

// Generate returns a fresh hex-encoded random token.
func (g *TokenGenerator) Generate() (string, error) {
	buf := make([]byte, g.byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
