package auth

import (
	"crypto/subtle"
)

// Gate checks the Authorization header of a request against the single
// bearer secret the process was started with.
type Gate struct {
	expected []byte
}

// NewGate creates a gate for the given secret. A gate built with an empty
// secret rejects everything.
func NewGate(secret string) *Gate {
	if secret == "" {
		return &Gate{}
	}
	return &Gate{expected: []byte("Bearer " + secret)}
}

// Authorize reports whether header is exactly "Bearer <secret>". The match
// is case sensitive and nothing is trimmed.
func (g *Gate) Authorize(header string) bool {
	if g == nil || len(g.expected) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), g.expected) == 1
}
