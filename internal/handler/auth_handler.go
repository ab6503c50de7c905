/*
Package handler provides the HTTP handlers and routing setup for chatgate.

This file contains the account endpoints: register, login, logout and the manual session
refresh. Session cookies are written by session.Manager; handlers never touch tokens.
*/
package handler

import (
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"chatgate/internal/app/db"
	"chatgate/internal/pkg/auth/session"
	"chatgate/internal/pkg/errs"
	"chatgate/internal/pkg/logx"
	"chatgate/internal/pkg/req"
	"chatgate/internal/pkg/resp"
)

const (
	maxUsernameLength = 100
	maxEmailLength    = 100
	minPasswordLength = 8

	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
)

// compareHash is swapped by tests to observe password comparisons.
var compareHash = bcrypt.CompareHashAndPassword

// dummyHash is compared against on the unknown-email path so that a missing account costs
// the same bcrypt work as a wrong password.
var dummyHash = sync.OnceValue(func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("chatgate-no-such-account"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
})

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// normalize trims and validates the input in place.
func (in *RegisterInput) normalize() *errs.CustomError {
	in.Username = strings.TrimSpace(in.Username)
	if n := utf8.RuneCountInString(in.Username); n < 1 || n > maxUsernameLength {
		return errs.NewError(errs.ErrInvalidUsername)
	}

	email, ok := normalizeEmail(in.Email)
	if !ok {
		return errs.NewError(errs.ErrInvalidEmail)
	}
	in.Email = email

	if !validPassword(in.Password) {
		return errs.NewError(errs.ErrInvalidPassword)
	}
	return nil
}

// normalizeEmail lower-cases a bare address and rejects display-name forms.
func normalizeEmail(raw string) (string, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || len(raw) > maxEmailLength {
		return "", false
	}

	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", false
	}
	return raw, true
}

// validPassword requires upper and lower case letters and a digit.
func validPassword(p string) bool {
	if len(p) < minPasswordLength || len(p) > maxPasswordBytes {
		return false
	}

	var upper, lower, digit bool
	for _, r := range p {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// HandleRegister creates an email account and signs it in without rememberMe.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input RegisterInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := input.normalize(); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			resp.RespondErr(w, r, errs.Wrap(errs.ErrUnknown, err))
			return
		}

		identity, err := deps.Users.CreateEmailUser(r.Context(), db.NewEmailUser{
			Username:     input.Username,
			Email:        input.Email,
			PasswordHash: string(hashedPassword),
		})
		if err != nil {
			if errs.HasCode(err, errs.ErrUserAlreadyExists) {
				logx.Ctx(r.Context()).Info().Msg("Registration conflict: email already exists")
			}
			resp.RespondErr(w, r, err)
			return
		}

		issued, err := deps.Sessions.Start(w.Header(), identity, false)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		logx.Ctx(r.Context()).Info().Int64("user_id", identity.ID).Msg("User registered")
		resp.RespondCreated(w, r, map[string]any{
			"user": issued.Display,
		})
	}
}

type LoginInput struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// HandleLogin verifies the credentials and starts a session. Unknown accounts, wrong
// passwords and inactive accounts all answer ErrInvalidCredentials.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input LoginInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		email, ok := normalizeEmail(input.Email)
		if !ok || input.Password == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		logger := logx.Ctx(r.Context())

		creds, err := deps.Users.GetCredentialsByEmail(r.Context(), email)
		if err != nil {
			if errs.HasCode(err, errs.ErrUserNotFound) {
				_ = compareHash(dummyHash(), []byte(input.Password))
				logger.Info().Msg("Login failed: unknown email")
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
				return
			}
			resp.RespondErr(w, r, err)
			return
		}

		if err := compareHash([]byte(creds.PasswordHash), []byte(input.Password)); err != nil {
			logger.Info().Int64("user_id", creds.Identity.ID).Msg("Login failed: password mismatch")
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if !creds.Identity.IsActive() {
			logger.Info().
				Int64("user_id", creds.Identity.ID).
				Str("status", string(creds.Identity.Status)).
				Msg("Login failed: account not active")
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		issued, err := deps.Sessions.Start(w.Header(), creds.Identity, input.RememberMe)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		logger.Info().
			Int64("user_id", creds.Identity.ID).
			Bool("remember_me", input.RememberMe).
			Msg("User logged in")
		resp.RespondSuccess(w, r, map[string]any{
			"user": issued.Display,
		})
	}
}

// HandleLogout revokes the refresh credential and clears every session cookie. Cookies are
// cleared even when the revocation could not be stored.
func HandleLogout(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Sessions.End(r.Context(), w.Header(), r); err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}

// HandleRefresh re-issues the access credential from the refresh credential, whatever the
// access credential's remaining lifetime.
func HandleRefresh(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Sessions.ForceRefresh(r.Context(), w.Header(), r)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		if !res.State.IsAuthenticated() || !res.Identity.IsActive() {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		if res.Refreshed {
			w.Header().Set(session.RefreshedHeader, "true")
		}

		resp.RespondSuccess(w, r, map[string]any{
			"user":      res.Identity.Display(),
			"refreshed": res.Refreshed,
		})
	}
}

// HandleVerify reports whether the request carries an active session. It never fails for
// a missing session; expired access cookies are refreshed on the way like any request.
func HandleVerify(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := session.IdentityFrom(r.Context())
		if !ok || !identity.IsActive() {
			resp.RespondSuccess(w, r, map[string]any{
				"authenticated": false,
				"user":          nil,
			})
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"authenticated": true,
			"user":          identity.Display(),
		})
	}
}
