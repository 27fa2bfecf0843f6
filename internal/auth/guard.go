// Package auth checks the shared admin secret that guards target mutations.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrAuthFailure is returned for a missing or wrong credential.
var ErrAuthFailure = errors.New("invalid password")

// Guard holds a bcrypt hash of the admin secret; the plain secret is not kept.
// A Guard built from an empty secret rejects every credential.
type Guard struct {
	hash []byte
}

// NewGuard hashes secret with bcrypt's default cost.
func NewGuard(secret string) (*Guard, error) {
	return newGuard(secret, bcrypt.DefaultCost)
}

func newGuard(secret string, cost int) (*Guard, error) {
	if secret == "" {
		return &Guard{}, nil
	}
	hash, err := bcrypt.GenerateFromPassword(digest(secret), cost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	return &Guard{hash: hash}, nil
}

// Enabled reports whether a secret is configured.
func (g *Guard) Enabled() bool {
	return g != nil && len(g.hash) > 0
}

// Verify returns ErrAuthFailure unless credential matches the secret.
func (g *Guard) Verify(credential string) error {
	if !g.Enabled() || credential == "" {
		return ErrAuthFailure
	}
	if bcrypt.CompareHashAndPassword(g.hash, digest(credential)) != nil {
		return ErrAuthFailure
	}
	return nil
}

// digest keeps bcrypt input at a fixed 64 bytes, under its 72 byte limit.
func digest(value string) []byte {
	sum := sha256.Sum256([]byte(value))
	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum[:])
	return out
}
