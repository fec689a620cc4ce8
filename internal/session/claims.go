package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is what the client can read from a bearer token without the
// signing key. The backend remains the only validator.
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time // zero when the token carries no exp
}

// Expired reports whether exp lies before now. Tokens without exp never expire here.
func (c TokenClaims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now)
}

var ErrNotJWT = errors.New("token is not a JWT")

// Claims decodes token without verifying its signature. Used for display
// only; it has no effect on whether the session counts as authenticated.
func Claims(token string) (TokenClaims, error) {
	if token == "" {
		return TokenClaims{}, ErrNotJWT
	}
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return TokenClaims{}, errors.Join(ErrNotJWT, err)
	}

	var c TokenClaims
	// Some backends put the numeric user id in sub.
	switch sub := mc["sub"].(type) {
	case string:
		c.Subject = sub
	case float64:
		c.Subject = fmt.Sprintf("%.0f", sub)
	}
	exp, err := mc.GetExpirationTime()
	if err != nil {
		return TokenClaims{}, fmt.Errorf("read exp: %w", err)
	}
	if exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}
