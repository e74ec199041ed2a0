package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

// Ensure Adapter implements TokenService
var _ driven.TokenService = (*Adapter)(nil)

// DefaultIssuer is the iss claim written into and required on every token
const DefaultIssuer = "nexus"

// minSecretLength is the shortest HS256 key accepted.
const minSecretLength = 32

// Adapter signs and verifies API bearer tokens with HS256
type Adapter struct {
	jwtSecret []byte
	issuer    string
	now       func() time.Time
}

// NewAdapter creates a token adapter with the given secret.
func NewAdapter(jwtSecret, issuer string) (*Adapter, error) {
	if len(jwtSecret) < minSecretLength {
		return nil, fmt.Errorf("%w: jwt secret must be at least %d bytes", domain.ErrInvalidInput, minSecretLength)
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &Adapter{
		jwtSecret: []byte(jwtSecret),
		issuer:    issuer,
		now:       time.Now,
	}, nil
}

// Issue creates a signed JWT for subject.
func (a *Adapter) Issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("%w: token subject required", domain.ErrInvalidInput)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: token ttl must be positive", domain.ErrInvalidInput)
	}

	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    a.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        domain.GenerateID(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

// Verify validates a JWT and extracts its claims
func (a *Adapter) Verify(tokenString string) (*driven.TokenClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	},
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: invalid token claims", domain.ErrUnauthorized)
	}

	return &driven.TokenClaims{
		Subject:   claims.Subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
