// Package jwt encodes and decodes the signed access tokens handed out at login.
package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid signature")
)

const defaultIssuer = "authcore"

// Claims carried by an access token. Expiry is a numeric timestamp (exp) and
// every token gets a fresh jti, so two tokens issued in the same second differ.
type Claims struct {
	Username string `json:"username"`
	UserID   string `json:"user_id"`
	RoleName string `json:"role_name,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens with a shared HMAC secret.
type Codec struct {
	secret []byte
	method jwt.SigningMethod
	issuer string
	now    func() time.Time
}

type Option func(*Codec)

// WithClock replaces time.Now for issuing and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func WithIssuer(issuer string) Option {
	return func(c *Codec) { c.issuer = issuer }
}

// NewCodec builds a codec for one of HS256, HS384 or HS512.
func NewCodec(secret, algorithm string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	method := jwt.GetSigningMethod(strings.ToUpper(algorithm))
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}

	c := &Codec{
		secret: []byte(secret),
		method: method,
		issuer: defaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs claims with a lifetime of ttl and returns the token and its expiry.
func (c *Codec) Issue(claims Claims, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token ttl must be positive")
	}
	now := c.now()
	expiresAt := now.Add(ttl)

	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		Issuer:    c.issuer,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.New().String(),
	}

	signed, err := jwt.NewWithClaims(c.method, &claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Decode verifies the signature and expiry of tokenString and returns its
// claims. Failures are reported as ErrTokenExpired, ErrInvalidSignature or
// ErrInvalidToken.
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(c.issuer),
		jwt.WithTimeFunc(c.now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" || claims.Username == "" {
		return nil, fmt.Errorf("%w: missing identity claims", ErrInvalidToken)
	}
	return claims, nil
}
