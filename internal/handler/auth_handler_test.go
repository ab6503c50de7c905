package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgate/internal/app/user"
	"chatgate/internal/pkg/auth/cookie"
	"chatgate/internal/pkg/auth/session"
	"chatgate/internal/pkg/errs"
)

func TestRegister_StartsSessionWithoutRememberMe(t *testing.T) {
	env := newTestEnv(t)

	cookies := env.register(t, "mika")
	assert.Equal(t, []string{cookie.AccessCookie, cookie.DisplayCookie}, cookieNames(cookies))

	res, out := env.do(t, http.MethodGet, "/api/users/me", nil, cookies)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var me struct {
		User   user.Identity `json:"user"`
		Online bool          `json:"online"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &me))
	assert.Equal(t, "mika", me.User.Username)
	assert.Equal(t, "mika@example.com", me.User.Email)
	assert.False(t, me.Online)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "taken")

	cases := []struct {
		name string
		body map[string]any
		code int
	}{
		{"blank username", map[string]any{"username": "  ", "email": "a@example.com", "password": "Passw0rdX"}, errs.ErrInvalidUsername},
		{"long username", map[string]any{"username": strings.Repeat("u", 101), "email": "a@example.com", "password": "Passw0rdX"}, errs.ErrInvalidUsername},
		{"bad email", map[string]any{"username": "a", "email": "not-an-email", "password": "Passw0rdX"}, errs.ErrInvalidEmail},
		{"display name email", map[string]any{"username": "a", "email": "A <a@example.com>", "password": "Passw0rdX"}, errs.ErrInvalidEmail},
		{"short password", map[string]any{"username": "a", "email": "a@example.com", "password": "Pw0"}, errs.ErrInvalidPassword},
		{"no digit", map[string]any{"username": "a", "email": "a@example.com", "password": "Password"}, errs.ErrInvalidPassword},
		{"too long password", map[string]any{"username": "a", "email": "a@example.com", "password": "Pw0" + strings.Repeat("x", 70)}, errs.ErrInvalidPassword},
		{"taken email", map[string]any{"username": "b", "email": "TAKEN@example.com", "password": "Passw0rdX"}, errs.ErrUserAlreadyExists},
		{"unknown field", map[string]any{"username": "b", "email": "b@example.com", "password": "Passw0rdX", "role": "admin"}, errs.ErrInvalidJSONFormat},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, out := env.do(t, http.MethodPost, "/api/auth/register", tc.body, nil)
			assert.Equal(t, errs.NewError(tc.code).Status, res.StatusCode)
			assert.Equal(t, tc.code, out.Code)
			assert.Empty(t, liveCookies(res))
		})
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "mika")

	cookies := env.login(t, "mika", true)
	assert.Equal(t, []string{cookie.AccessCookie, cookie.RefreshCookie, cookie.DisplayCookie}, cookieNames(cookies))

	cookies = env.login(t, "mika", false)
	assert.Equal(t, []string{cookie.AccessCookie, cookie.DisplayCookie}, cookieNames(cookies))
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "mika")
	env.register(t, "gone")
	env.users.setStatus(2, user.StatusInactive)

	cases := map[string]map[string]any{
		"unknown email":  {"email": "nobody@example.com", "password": "Passw0rdX"},
		"wrong password": {"email": "mika@example.com", "password": "Wr0ngPass"},
		"inactive":       {"email": "gone@example.com", "password": "Passw0rdX"},
		"empty password": {"email": "mika@example.com", "password": ""},
	}

	var messages []string
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			res, out := env.do(t, http.MethodPost, "/api/auth/login", body, nil)
			assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
			assert.Equal(t, errs.ErrInvalidCredentials, out.Code)
			assert.Empty(t, liveCookies(res))
			messages = append(messages, out.Message)
		})
	}

	for _, m := range messages {
		assert.Equal(t, messages[0], m)
	}
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "mika")
	cookies := env.login(t, "mika", true)

	res, out := env.do(t, http.MethodPost, "/api/auth/refresh", nil, cookies)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "true", res.Header.Get(session.RefreshedHeader))
	assert.Equal(t, []string{cookie.AccessCookie, cookie.DisplayCookie}, cookieNames(liveCookies(res)))

	var body struct {
		User      user.Display `json:"user"`
		Refreshed bool         `json:"refreshed"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &body))
	assert.True(t, body.Refreshed)
	assert.Equal(t, "mika", body.User.Username)
}

func TestRefresh_WithoutSession(t *testing.T) {
	env := newTestEnv(t)

	res, out := env.do(t, http.MethodPost, "/api/auth/refresh", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, errs.ErrUnauthorized, out.Code)
}

func TestLogout_RevokesRefreshCredential(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "mika")
	cookies := env.login(t, "mika", true)

	res, _ := env.do(t, http.MethodPost, "/api/auth/logout", nil, cookies)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []string{cookie.AccessCookie, cookie.RefreshCookie, cookie.DisplayCookie}, clearedCookies(res))

	// A client that ignored the cleared cookies still cannot refresh.
	res, out := env.do(t, http.MethodPost, "/api/auth/refresh", nil, cookies)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, errs.ErrUnauthorized, out.Code)

	// Logging out twice is harmless.
	res, _ = env.do(t, http.MethodPost, "/api/auth/logout", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestSilentRefreshOnExpiredAccess(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "mika")
	remembered := env.login(t, "mika", true)
	forgotten := env.login(t, "mika", false)

	env.clk.advance(3 * time.Hour)

	res, _ := env.do(t, http.MethodGet, "/api/users/me", nil, remembered)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "true", res.Header.Get(session.RefreshedHeader))

	next := merge(remembered, liveCookies(res))
	res, _ = env.do(t, http.MethodGet, "/api/users/me", nil, next)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, res.Header.Get(session.RefreshedHeader))

	res, out := env.do(t, http.MethodGet, "/api/users/me", nil, forgotten)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, errs.ErrUnauthorized, out.Code)
}

func TestValidPassword(t *testing.T) {
	assert.True(t, validPassword("Passw0rdX"))
	assert.False(t, validPassword("passw0rdx"))
	assert.False(t, validPassword("PASSW0RDX"))
	assert.False(t, validPassword("Password!"))
}

func TestNormalizeEmail(t *testing.T) {
	got, ok := normalizeEmail("  Mika@Example.COM ")
	assert.True(t, ok)
	assert.Equal(t, "mika@example.com", got)

	_, ok = normalizeEmail(strings.Repeat("a", 95) + "@x.com")
	assert.False(t, ok)
}

func TestLogin_RateLimitedPerIP(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "mika")
	env.fixedIP = "203.0.113.7"

	body := map[string]any{"email": "mika@example.com", "password": "Wr0ngPass"}
	for range AuthBurst {
		res, _ := env.do(t, http.MethodPost, "/api/auth/login", body, nil)
		require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	}

	res, out := env.do(t, http.MethodPost, "/api/auth/login", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Equal(t, errs.ErrRateLimitExceeded, out.Code)
}

func TestVerify(t *testing.T) {
	env := newTestEnv(t)

	verify := func(cookies []*http.Cookie) (*http.Response, bool, *user.Display) {
		res, out := env.do(t, http.MethodGet, "/api/auth/verify", nil, cookies)
		require.Equal(t, http.StatusOK, res.StatusCode)
		var body struct {
			Authenticated bool          `json:"authenticated"`
			User          *user.Display `json:"user"`
		}
		require.NoError(t, json.Unmarshal(out.Data, &body))
		return res, body.Authenticated, body.User
	}

	_, ok, who := verify(nil)
	assert.False(t, ok)
	assert.Nil(t, who)

	env.register(t, "mika")
	cookies := env.login(t, "mika", true)
	_, ok, who = verify(cookies)
	assert.True(t, ok)
	require.NotNil(t, who)
	assert.Equal(t, "mika", who.Username)

	env.clk.advance(3 * time.Hour)
	res, ok, _ := verify(cookies)
	assert.True(t, ok)
	assert.Equal(t, "true", res.Header.Get(session.RefreshedHeader))
}

func TestLogin_UnknownEmailStillComparesHash(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "mika")

	var compared atomic.Int32
	orig := compareHash
	compareHash = func(hash, password []byte) error {
		compared.Add(1)
		return orig(hash, password)
	}
	t.Cleanup(func() { compareHash = orig })

	for _, email := range []string{"nobody@example.com", "mika@example.com"} {
		compared.Store(0)
		res, _ := env.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": email, "password": "Wr0ngPass"}, nil)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode, email)
		assert.Equal(t, int32(1), compared.Load(), email)
	}
}
