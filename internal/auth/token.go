// Package auth implements the shared-secret bearer gate in front of the
// queue drain endpoint.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthorized is returned when a presented token does not match.
var ErrUnauthorized = errors.New("auth: unauthorized")

const (
	tokenBytes = 32
	bcryptCost = 12
)

// TokenGate checks bearer tokens against one configured secret. The secret
// is either the token itself or a bcrypt hash of it. A gate with no secret
// admits every caller.
type TokenGate struct {
	plain  []byte
	hashed []byte
}

// NewTokenGate creates a gate for secret. Surrounding whitespace is ignored.
func NewTokenGate(secret string) *TokenGate {
	secret = strings.TrimSpace(secret)
	switch {
	case secret == "":
		return &TokenGate{}
	case isBcryptHash(secret):
		return &TokenGate{hashed: []byte(secret)}
	default:
		return &TokenGate{plain: []byte(secret)}
	}
}

// Open reports whether the gate admits unauthenticated callers.
func (g *TokenGate) Open() bool {
	return g == nil || (len(g.plain) == 0 && len(g.hashed) == 0)
}

// Hashed reports whether the configured secret is a bcrypt hash.
func (g *TokenGate) Hashed() bool {
	return g != nil && len(g.hashed) > 0
}

// Verify returns nil when token matches the configured secret.
func (g *TokenGate) Verify(token string) error {
	if g.Open() {
		return nil
	}
	if token == "" {
		return ErrUnauthorized
	}
	if g.Hashed() {
		if err := bcrypt.CompareHashAndPassword(g.hashed, []byte(token)); err != nil {
			return ErrUnauthorized
		}
		return nil
	}
	if subtle.ConstantTimeCompare(g.plain, []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// GenerateToken returns a random 64-character hex token.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashToken hashes a token with bcrypt so the hash, not the token, can be
// placed in configuration.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(hash), nil
}

func isBcryptHash(s string) bool {
	for _, p := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
