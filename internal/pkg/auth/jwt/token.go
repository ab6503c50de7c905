/*
Package jwt issues and verifies the HS256 access and refresh credentials of a session.

Each kind is signed with its own secret and lifetime, and the kind claim is checked on
verification so a credential of one kind never validates as the other.
*/
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"chatgate/internal/app/user"
	"chatgate/internal/pkg/errs"
)

// DefaultIssuer is used when Config.Issuer is empty.
const DefaultIssuer = "chatgate"

// Config holds the per-kind secrets and lifetimes.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// Codec signs and verifies credentials.
type Codec struct {
	cfg Config
	now func() time.Time
}

// Option customizes a Codec.
type Option func(*Codec)

// WithClock replaces the wall clock used for iat, exp and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec returns a Codec for cfg.
func NewCodec(cfg Config, opts ...Option) *Codec {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}

	c := &Codec{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the lifetime of kind.
func (c *Codec) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return c.cfg.RefreshTTL
	}
	return c.cfg.AccessTTL
}

func (c *Codec) secret(kind Kind) string {
	if kind == KindRefresh {
		return c.cfg.RefreshSecret
	}
	return c.cfg.AccessSecret
}

// Issue signs a credential of kind for id. Failures are ErrTokenSigning.
func (c *Codec) Issue(id user.Identity, kind Kind) (string, error) {
	if kind != KindAccess && kind != KindRefresh {
		return "", errs.Wrap(errs.ErrTokenSigning, fmt.Errorf("unknown credential kind %q", kind))
	}

	secret := c.secret(kind)
	if secret == "" {
		return "", errs.Wrap(errs.ErrTokenSigning, fmt.Errorf("no secret configured for %s credentials", kind))
	}

	now := c.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.TTL(kind))),
		},
		UserID:       id.ID,
		Role:         id.Role,
		ProviderType: id.ProviderType,
		Kind:         kind,
	}

	switch kind {
	case KindAccess:
		claims.Username = id.Username
		claims.Email = id.Email
		claims.AvatarURL = id.AvatarURL
		claims.Status = id.Status
	case KindRefresh:
		claims.ID = ulid.Make().String()
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", errs.Wrap(errs.ErrTokenSigning, err)
	}

	return token, nil
}

// Verify checks signature, issuer, expiry and kind of token.
// It returns ErrTokenMalformed, ErrTokenKindMismatch or ErrTokenExpired on failure.
func (c *Codec) Verify(token string, expected Kind) (*Claims, error) {
	if token == "" {
		return nil, errs.Wrap(errs.ErrTokenMalformed, errors.New("empty credential"))
	}

	unverified := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, unverified); err != nil {
		return nil, errs.Wrap(errs.ErrTokenMalformed, err)
	}

	if unverified.Kind != expected {
		return nil, errs.Wrap(errs.ErrTokenKindMismatch, fmt.Errorf("got %q credential, want %q", unverified.Kind, expected))
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(c.secret(expected)), nil
	})

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, errs.Wrap(errs.ErrTokenExpired, err)
	default:
		return nil, errs.Wrap(errs.ErrTokenMalformed, err)
	}

	if expected == KindRefresh && claims.ID == "" {
		return nil, errs.Wrap(errs.ErrTokenMalformed, errors.New("refresh credential without jti"))
	}

	return claims, nil
}

// IsExpiringSoon decodes token without verifying it and reports whether it expires
// within threshold. Undecodable credentials and a missing exp count as expiring.
func (c *Codec) IsExpiringSoon(token string, threshold time.Duration) bool {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}

	if claims.ExpiresAt == nil {
		return true
	}

	return claims.ExpiresAt.Sub(c.now()) <= threshold
}
