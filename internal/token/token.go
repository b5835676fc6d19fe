// Package token issues and verifies the signed session tokens handed to
// remote clients after login.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"warden/internal/models"
)

// Validity is the fixed window between issuance and expiry.
const Validity = 7 * 24 * time.Hour

// TokenError reports a token that failed verification: bad signature,
// expired, malformed, or signed with a rotated secret.
type TokenError struct {
	Reason string
}

func (e *TokenError) Error() string { return "invalid token: " + e.Reason }

// SecretSource provides the current signing secret. Reading it on every
// call is what makes secret rotation an immediate revoke-all.
type SecretSource interface {
	Secret() string
}

// Claims is the signed payload of a session token. Permissions are the
// snapshot taken at issuance.
type Claims struct {
	UserID      string   `json:"userId"`
	Username    string   `json:"username"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// Identity converts verified claims into a connection identity.
func (c *Claims) Identity() models.Identity {
	return models.Identity{
		UserID:      c.UserID,
		Username:    c.Username,
		Permissions: append([]string(nil), c.Permissions...),
	}
}

// Service signs and verifies session tokens with HMAC-SHA256.
type Service struct {
	secrets SecretSource
	now     func() time.Time
}

// NewService creates a token service reading secrets from src.
func NewService(src SecretSource) *Service {
	return &Service{secrets: src, now: time.Now}
}

// Issue mints a token for the user with a permissions snapshot and the
// fixed validity window.
func (s *Service) Issue(user models.RemoteUser) (string, *Claims, error) {
	now := s.now().UTC()
	claims := &Claims{
		UserID:      user.ID,
		Username:    user.Username,
		Permissions: append([]string(nil), user.Permissions...),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(Validity)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(s.secrets.Secret()))
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify parses and validates a token against the current secret. Tokens
// signed before a secret rotation fail here.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return []byte(s.secrets.Secret()), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil {
		return nil, &TokenError{Reason: err.Error()}
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, &TokenError{Reason: "missing identity claims"}
	}
	return claims, nil
}
