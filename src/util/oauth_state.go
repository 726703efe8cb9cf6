package util

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	oauthStateSubject = "oauth-state"
	oauthStateTTL     = 10 * time.Minute
)

// NewOAuthState returns a short-lived signed value for the OAuth2 state
// parameter, so the callback can be checked without server-side storage.
func NewOAuthState(secret []byte, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   oauthStateSubject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(oauthStateTTL)),
	}
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign oauth state: %w", err)
	}
	return state, nil
}

func VerifyOAuthState(secret []byte, state string) error {
	if state == "" {
		return errors.New("missing state")
	}
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithSubject(oauthStateSubject), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return fmt.Errorf("invalid state: %w", err)
	}
	return nil
}
