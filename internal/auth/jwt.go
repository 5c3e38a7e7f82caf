package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"edutrack/internal/identity"
)

// ErrInvalidToken covers every token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims represents the JWT payload handed out by the identity provider.
type Claims struct {
	Name string        `json:"name"`
	Role identity.Role `json:"role"`
	jwt.RegisteredClaims
}

// Person converts verified claims into the identity the engine trusts.
func (c Claims) Person() identity.Person {
	return identity.Person{ID: c.Subject, Name: c.Name, Role: c.Role}
}

// Issue signs an HS256 access token for p.
func Issue(p identity.Person, issuer, key string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	if p.ID == "" {
		return "", time.Time{}, errors.New("subject required")
	}
	if !p.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("unknown role %q", p.Role)
	}
	exp := now.Add(ttl)
	claims := Claims{
		Name: p.Name,
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   p.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(key), nil
	}, opts...)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return Claims{}, fmt.Errorf("%w: missing subject or role", ErrInvalidToken)
	}
	return *claims, nil
}
