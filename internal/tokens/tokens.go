package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleClaims is the payload of a role token. Subject carries the user id the
// role was issued for.
type RoleClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

var ErrNoSecret = errors.New("role token secret not configured")

// GenerateRoleToken signs a token granting role to userID for ttl.
func GenerateRoleToken(secret, userID, role string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := RoleClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString([]byte(secret))
}

// ParseRoleToken verifies signature and expiry and returns the claims. Only
// HS256 is accepted.
func ParseRoleToken(secret, token string) (*RoleClaims, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	claims := &RoleClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse role token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("parse role token: invalid")
	}
	return claims, nil
}
