package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is what the console can read from a bearer token without
// verifying it. Display only: the server stays the authority.
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
}

// ReadClaims decodes the token's registered claims without checking the
// signature. Opaque (non-JWT) tokens return an error.
func ReadClaims(token string) (TokenClaims, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return TokenClaims{}, err
	}

	out := TokenClaims{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// Expired reports whether the claims carry an expiry before now.
func (c TokenClaims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now)
}
