// Package auth issues and validates the bearer session tokens minted after
// a successful challenge verification.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// MinSecretLength is the minimum accepted HMAC key length.
	MinSecretLength = 32

	// DefaultTokenDuration is the session token lifetime when none is
	// configured.
	DefaultTokenDuration = 7 * 24 * time.Hour
)

// Common errors for token operations.
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrTokenSigningFailed  = errors.New("failed to sign token")
	ErrInvalidSecretLength = errors.New("token secret must be at least 32 characters")
)

// TokenConfig holds configuration for session token generation.
type TokenConfig struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Issuer is the token issuer claim. Default: "quietwire"
	Issuer string

	// TokenDuration is the session token lifetime. Default: 7 days.
	TokenDuration time.Duration
}

// TokenService mints and validates session tokens.
type TokenService struct {
	config TokenConfig
}

// NewTokenService creates a new token service with the given configuration.
func NewTokenService(config TokenConfig) (*TokenService, error) {
	if len(config.Secret) < MinSecretLength {
		return nil, ErrInvalidSecretLength
	}

	if config.Issuer == "" {
		config.Issuer = "quietwire"
	}
	if config.TokenDuration == 0 {
		config.TokenDuration = DefaultTokenDuration
	}

	return &TokenService{config: config}, nil
}

// GenerateToken mints a session token for the given (user, device) pair.
func (s *TokenService) GenerateToken(userID, deviceID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenDuration)),
		},
		UserID:   userID,
		DeviceID: deviceID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", ErrTokenSigningFailed
	}

	return signedToken, nil
}

// ValidateToken parses and cryptographically verifies a session token in a
// single step, returning its claims. There is no caller-visible branch
// between extraction and verification: the only outcomes are a verified
// payload or an error.
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" || claims.DeviceID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// TokenDuration returns the configured session token lifetime.
func (s *TokenService) TokenDuration() time.Duration {
	return s.config.TokenDuration
}
