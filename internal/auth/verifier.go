// Package auth verifies the bearer tokens callers attach when opening a
// camera WebSocket. Tokens are HS256 JWTs issued elsewhere; this service
// only checks them.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")
var ErrTokenExpired = errors.New("token expired")

// Identity is the authenticated caller extracted from a valid token.
type Identity struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// Verifier resolves a bearer token to an identity or fails with
// ErrInvalidToken / ErrTokenExpired.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// JWTVerifier validates HS256 tokens. The subject claim is required and
// becomes the user id; expiry is mandatory.
type JWTVerifier struct {
	secret []byte
	nowFn  func() time.Time
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		nowFn:  time.Now,
	}
}

func (v *JWTVerifier) Verify(token string) (Identity, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.nowFn),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrInvalidToken
	}
	if !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return Identity{}, ErrInvalidToken
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return Identity{}, ErrInvalidToken
	}

	email, _ := claims["email"].(string)
	return Identity{
		UserID:    subject,
		Email:     email,
		ExpiresAt: expiry.Time,
	}, nil
}

func (v *JWTVerifier) keyFunc(token *jwt.Token) (any, error) {
	return v.secret, nil
}
