/*
Package cookie persists a session in three signed browser cookies.

auth_token holds the access credential, remember_me the refresh credential and user_display
a readable copy of the identity for the UI. Values are HMAC-signed with securecookie so a
tampered cookie is rejected before any credential check runs.
*/
package cookie

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/rs/zerolog"

	"chatgate/internal/app/user"
	"chatgate/internal/pkg/auth/jwt"
	"chatgate/internal/pkg/errs"
	"chatgate/internal/pkg/logx"
)

// Cookie names.
const (
	AccessCookie  = "auth_token"
	RefreshCookie = "remember_me"
	DisplayCookie = "user_display"
)

// Field selects which cookies Persist writes.
type Field uint8

const (
	FieldAccess Field = 1 << iota
	FieldRefresh
	FieldDisplay

	FieldsAll = FieldAccess | FieldRefresh | FieldDisplay
)

// Codec is the credential issuer the store depends on.
type Codec interface {
	Issue(id user.Identity, kind jwt.Kind) (string, error)
	Verify(token string, expected jwt.Kind) (*jwt.Claims, error)
	TTL(kind jwt.Kind) time.Duration
}

// Options are the attributes shared by every session cookie.
type Options struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
}

// PersistOptions controls one Persist call.
type PersistOptions struct {
	// RememberMe must be set for the refresh cookie to be written.
	RememberMe bool

	// Fields restricts the written cookies. Zero means all.
	Fields Field
}

// Issued reports what Persist wrote.
type Issued struct {
	AccessToken  string
	RefreshToken string
	Display      *user.Display
}

// ReadResult is the decoded state of the session cookies. A nil claim with a nil error
// means the cookie was absent.
type ReadResult struct {
	AccessToken string
	Access      *jwt.Claims
	AccessErr   error

	RefreshToken string
	Refresh      *jwt.Claims
	RefreshErr   error

	Display *user.Display
}

// HasAccess reports whether a verified access credential was read.
func (r ReadResult) HasAccess() bool { return r.Access != nil }

// HasRefresh reports whether a verified refresh credential was read.
func (r ReadResult) HasRefresh() bool { return r.Refresh != nil }

// Store reads and writes the session cookies.
type Store struct {
	codec  Codec
	sc     *securecookie.SecureCookie
	opts   Options
	logger zerolog.Logger
}

// NewStore returns a Store signing cookies with hashKey.
func NewStore(codec Codec, hashKey []byte, opts Options) *Store {
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}

	s := &Store{
		codec:  codec,
		opts:   opts,
		logger: logx.Component("cookie_store"),
	}

	if len(hashKey) > 0 {
		s.sc = securecookie.New(hashKey, nil).
			SetSerializer(securecookie.JSONEncoder{}).
			MaxAge(int(codec.TTL(jwt.KindRefresh) / time.Second))
	}

	return s
}

// Persist issues the requested credentials and writes their cookies to h.
// Every value is encoded before the first Set-Cookie header is added, so on error
// h is left untouched. Failures are ErrSessionWrite.
func (s *Store) Persist(h http.Header, id user.Identity, po PersistOptions) (Issued, error) {
	if s.sc == nil {
		return Issued{}, errs.Wrap(errs.ErrSessionWrite, errors.New("cookie store has no signing key"))
	}

	fields := po.Fields
	if fields == 0 {
		fields = FieldsAll
	}

	var (
		issued  Issued
		cookies []*http.Cookie
	)

	if fields&FieldAccess != 0 {
		token, err := s.codec.Issue(id, jwt.KindAccess)
		if err != nil {
			return Issued{}, errs.Wrap(errs.ErrSessionWrite, err)
		}
		c, err := s.encode(AccessCookie, token, s.codec.TTL(jwt.KindAccess), true)
		if err != nil {
			return Issued{}, err
		}
		issued.AccessToken = token
		cookies = append(cookies, c)
	}

	if fields&FieldRefresh != 0 && po.RememberMe {
		token, err := s.codec.Issue(id, jwt.KindRefresh)
		if err != nil {
			return Issued{}, errs.Wrap(errs.ErrSessionWrite, err)
		}
		c, err := s.encode(RefreshCookie, token, s.codec.TTL(jwt.KindRefresh), true)
		if err != nil {
			return Issued{}, err
		}
		issued.RefreshToken = token
		cookies = append(cookies, c)
	}

	if fields&FieldDisplay != 0 {
		display := id.Display()
		c, err := s.encode(DisplayCookie, display, s.codec.TTL(jwt.KindRefresh), false)
		if err != nil {
			return Issued{}, err
		}
		issued.Display = &display
		cookies = append(cookies, c)
	}

	for _, c := range cookies {
		h.Add("Set-Cookie", c.String())
	}

	return issued, nil
}

func (s *Store) encode(name string, value any, ttl time.Duration, httpOnly bool) (*http.Cookie, error) {
	encoded, err := s.sc.Encode(name, value)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSessionWrite, err)
	}

	c := s.base(name)
	c.Value = encoded
	c.MaxAge = int(ttl / time.Second)
	c.Expires = time.Now().Add(ttl)
	c.HttpOnly = httpOnly
	return c, nil
}

func (s *Store) base(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Path:     "/",
		Domain:   s.opts.Domain,
		Secure:   s.opts.Secure,
		SameSite: s.opts.SameSite,
	}
}

// Read decodes and verifies each session cookie of r independently.
// A bad display cookie yields a nil Display and is only logged.
func (s *Store) Read(r *http.Request) (ReadResult, error) {
	if r == nil {
		return ReadResult{}, errs.Wrap(errs.ErrInvalidParams, errors.New("nil request"))
	}
	if s.sc == nil {
		return ReadResult{}, errs.Wrap(errs.ErrInvalidParams, errors.New("cookie store has no signing key"))
	}

	var res ReadResult
	res.AccessToken, res.Access, res.AccessErr = s.readCredential(r, AccessCookie, jwt.KindAccess)
	res.RefreshToken, res.Refresh, res.RefreshErr = s.readCredential(r, RefreshCookie, jwt.KindRefresh)

	if c, err := r.Cookie(DisplayCookie); err == nil {
		var display user.Display
		if err := s.sc.Decode(DisplayCookie, c.Value, &display); err != nil {
			s.logger.Debug().Err(err).Msg("Ignoring undecodable display cookie")
		} else {
			res.Display = &display
		}
	}

	return res, nil
}

func (s *Store) readCredential(r *http.Request, name string, kind jwt.Kind) (string, *jwt.Claims, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", nil, nil
	}

	var token string
	if err := s.sc.Decode(name, c.Value, &token); err != nil {
		return "", nil, errs.Wrap(errs.ErrTokenMalformed, err)
	}

	claims, err := s.codec.Verify(token, kind)
	if err != nil {
		return token, nil, err
	}

	return token, claims, nil
}

// Clear expires all three session cookies. It is idempotent and never fails.
func (s *Store) Clear(h http.Header) {
	for _, name := range []string{AccessCookie, RefreshCookie, DisplayCookie} {
		c := s.base(name)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		c.HttpOnly = name != DisplayCookie
		h.Add("Set-Cookie", c.String())
	}
}
