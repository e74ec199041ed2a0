package driven

import (
	"time"
)

// TokenClaims identifies the caller of an authenticated API request.
type TokenClaims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenService mints and verifies API bearer tokens (JWT).
type TokenService interface {
	// Issue signs a token for subject valid for ttl.
	Issue(subject string, ttl time.Duration) (string, error)

	// Verify parses a token and returns its claims.
	// Returns domain.ErrUnauthorized or domain.ErrTokenExpired.
	Verify(token string) (*TokenClaims, error)
}
