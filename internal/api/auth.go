package api

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdministrator = "administrator"
	RolePractitioner  = "practitioner"
)

var ErrBadToken = errors.New("invalid token")

type Principal struct {
	Subject string
	Role    string
}

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// MakeToken signs a short-lived token the way the auth service does. Used by
// tests and the dev tooling.
func MakeToken(subject, role, secret string, ttl time.Duration) (string, error) {
	c := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

func ParseToken(raw, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		// block alg confusion
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadToken
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	c, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrBadToken
	}
	if c.Role != RoleAdministrator && c.Role != RolePractitioner {
		return nil, ErrBadToken
	}
	return c, nil
}
