// Package auth issues and verifies the signed tokens that bind a client to
// its profile. Profiles are anonymous; holding the token is the identity.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcoot/tileclaim/internal/dependencies/clock"
	"github.com/mcoot/tileclaim/internal/dependencies/random"
	"github.com/mcoot/tileclaim/internal/model"
)

const (
	issuer = "tileclaim"

	secretLength   = 48
	secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Claims are the registered claims plus the profile the token belongs to
type Claims struct {
	jwt.RegisteredClaims
	ProfileID string `json:"pid"`
}

// Config holds configuration for the auth service
type Config struct {
	Secret   string
	TokenTTL time.Duration
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		TokenTTL: 30 * 24 * time.Hour,
	}
}

// Service signs and verifies profile tokens
type Service struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// New creates a new auth Service. Without a configured secret a random one
// is generated, so tokens do not survive a restart.
func New(cfg Config, clock clock.Clock, rnd random.Random) *Service {
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = DefaultConfig().TokenTTL
	}
	secret := cfg.Secret
	if secret == "" {
		secret = rnd.String(secretLength, secretAlphabet)
	}
	return &Service{
		secret: []byte(secret),
		ttl:    cfg.TokenTTL,
		clock:  clock,
	}
}

// Issue returns a signed token for the profile
func (s *Service) Issue(id model.ProfileID) (string, time.Time, error) {
	now := s.clock.Now()
	expires := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   string(id),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		ProfileID: string(id),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks the token and returns the profile it was issued for
func (s *Service) Verify(tokenString string) (model.ProfileID, error) {
	if tokenString == "" {
		return "", fmt.Errorf("%w: missing token", model.ErrUnauthorized)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: token expired", model.ErrUnauthorized)
		}
		return "", fmt.Errorf("%w: %v", model.ErrUnauthorized, err)
	}
	if !token.Valid || claims.ProfileID == "" {
		return "", fmt.Errorf("%w: invalid token", model.ErrUnauthorized)
	}

	return model.ProfileID(claims.ProfileID), nil
}
