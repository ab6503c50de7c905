package cookie

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgate/internal/app/user"
	"chatgate/internal/pkg/auth/jwt"
	"chatgate/internal/pkg/errs"
)

var hashKey = []byte("0123456789abcdef0123456789abcdef")

var ana = user.Identity{
	ID:           7,
	Username:     "ana",
	Email:        "ana@example.com",
	Role:         user.RoleUser,
	Status:       user.StatusActive,
	ProviderType: user.ProviderEmail,
}

func newCodec() *jwt.Codec {
	return jwt.NewCodec(jwt.Config{
		AccessSecret:  "access",
		RefreshSecret: "refresh",
		AccessTTL:     2 * time.Hour,
		RefreshTTL:    168 * time.Hour,
	})
}

// failingCodec refuses to issue credentials of one kind.
type failingCodec struct {
	*jwt.Codec
	fail jwt.Kind
}

func (f failingCodec) Issue(id user.Identity, kind jwt.Kind) (string, error) {
	if kind == f.fail {
		return "", errs.Wrap(errs.ErrTokenSigning, errors.New("hsm unavailable"))
	}
	return f.Codec.Issue(id, kind)
}

// requestWith replays the Set-Cookie headers of h as request cookies.
func requestWith(h http.Header) *http.Request {
	rec := httptest.NewRecorder()
	for _, v := range h.Values("Set-Cookie") {
		rec.Header().Add("Set-Cookie", v)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 && c.Value != "" {
			r.AddCookie(c)
		}
	}
	return r
}

func cookiesByName(h http.Header) map[string]*http.Cookie {
	rec := httptest.NewRecorder()
	for _, v := range h.Values("Set-Cookie") {
		rec.Header().Add("Set-Cookie", v)
	}
	out := make(map[string]*http.Cookie)
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestPersist_RememberMeWritesAllThree(t *testing.T) {
	s := NewStore(newCodec(), hashKey, Options{Secure: true, Domain: "chat.example"})
	h := http.Header{}

	issued, err := s.Persist(h, ana, PersistOptions{RememberMe: true})
	require.NoError(t, err)
	assert.NotEmpty(t, issued.AccessToken)
	assert.NotEmpty(t, issued.RefreshToken)
	require.NotNil(t, issued.Display)

	cookies := cookiesByName(h)
	require.Len(t, cookies, 3)

	access := cookies[AccessCookie]
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.Equal(t, "/", access.Path)
	assert.Equal(t, "chat.example", access.Domain)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)
	assert.Equal(t, int((2 * time.Hour).Seconds()), access.MaxAge)

	assert.True(t, cookies[RefreshCookie].HttpOnly)
	assert.Equal(t, int((168 * time.Hour).Seconds()), cookies[RefreshCookie].MaxAge)
	assert.False(t, cookies[DisplayCookie].HttpOnly)
}

func TestPersist_WithoutRememberMeSkipsRefresh(t *testing.T) {
	s := NewStore(newCodec(), hashKey, Options{})
	h := http.Header{}

	issued, err := s.Persist(h, ana, PersistOptions{})
	require.NoError(t, err)
	assert.Empty(t, issued.RefreshToken)

	cookies := cookiesByName(h)
	assert.Contains(t, cookies, AccessCookie)
	assert.Contains(t, cookies, DisplayCookie)
	assert.NotContains(t, cookies, RefreshCookie)
}

func TestPersist_FieldsSubset(t *testing.T) {
	s := NewStore(newCodec(), hashKey, Options{})
	h := http.Header{}

	_, err := s.Persist(h, ana, PersistOptions{RememberMe: true, Fields: FieldAccess | FieldDisplay})
	require.NoError(t, err)

	cookies := cookiesByName(h)
	assert.Len(t, cookies, 2)
	assert.NotContains(t, cookies, RefreshCookie)
}

func TestPersist_FailureWritesNothing(t *testing.T) {
	s := NewStore(failingCodec{Codec: newCodec(), fail: jwt.KindRefresh}, hashKey, Options{})
	h := http.Header{}

	_, err := s.Persist(h, ana, PersistOptions{RememberMe: true})
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.ErrSessionWrite))
	assert.Empty(t, h.Values("Set-Cookie"))
}

func TestPersist_NoKey(t *testing.T) {
	s := NewStore(newCodec(), nil, Options{})
	h := http.Header{}

	_, err := s.Persist(h, ana, PersistOptions{})
	assert.True(t, errs.HasCode(err, errs.ErrSessionWrite))
	assert.Empty(t, h)
}

func TestRead_RoundTrip(t *testing.T) {
	s := NewStore(newCodec(), hashKey, Options{})
	h := http.Header{}
	issued, err := s.Persist(h, ana, PersistOptions{RememberMe: true})
	require.NoError(t, err)

	res, err := s.Read(requestWith(h))
	require.NoError(t, err)

	require.True(t, res.HasAccess())
	require.True(t, res.HasRefresh())
	assert.NoError(t, res.AccessErr)
	assert.NoError(t, res.RefreshErr)
	assert.Equal(t, issued.AccessToken, res.AccessToken)
	assert.Equal(t, issued.RefreshToken, res.RefreshToken)
	assert.Equal(t, ana, res.Access.Identity())
	assert.Equal(t, ana.ID, res.Refresh.UserID)
	require.NotNil(t, res.Display)
	assert.Equal(t, ana.Display(), *res.Display)
}

func TestRead_TamperedCookies(t *testing.T) {
	s := NewStore(newCodec(), hashKey, Options{})
	h := http.Header{}
	_, err := s.Persist(h, ana, PersistOptions{RememberMe: true})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for name, c := range cookiesByName(h) {
		r.AddCookie(&http.Cookie{Name: name, Value: c.Value[:len(c.Value)-2] + "xx"})
	}

	res, err := s.Read(r)
	require.NoError(t, err)
	assert.False(t, res.HasAccess())
	assert.False(t, res.HasRefresh())
	assert.True(t, errs.HasCode(res.AccessErr, errs.ErrTokenMalformed))
	assert.True(t, errs.HasCode(res.RefreshErr, errs.ErrTokenMalformed))
	assert.Nil(t, res.Display)
}

func TestRead_OtherKeyRejected(t *testing.T) {
	writer := NewStore(newCodec(), []byte("another-key-another-key-another-"), Options{})
	h := http.Header{}
	_, err := writer.Persist(h, ana, PersistOptions{})
	require.NoError(t, err)

	res, err := NewStore(newCodec(), hashKey, Options{}).Read(requestWith(h))
	require.NoError(t, err)
	assert.False(t, res.HasAccess())
	assert.Error(t, res.AccessErr)
}

func TestRead_NoCookies(t *testing.T) {
	s := NewStore(newCodec(), hashKey, Options{})

	res, err := s.Read(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, ReadResult{}, res)
}

func TestRead_InputErrors(t *testing.T) {
	_, err := NewStore(newCodec(), hashKey, Options{}).Read(nil)
	assert.Equal(t, errs.KindInput, errs.KindOf(err))

	_, err = NewStore(newCodec(), nil, Options{}).Read(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, errs.KindInput, errs.KindOf(err))
}

func TestClear_Idempotent(t *testing.T) {
	s := NewStore(newCodec(), hashKey, Options{Secure: true})

	once := http.Header{}
	s.Clear(once)

	twice := http.Header{}
	s.Clear(twice)
	s.Clear(twice)

	for name, c := range cookiesByName(once) {
		assert.Equal(t, -1, c.MaxAge, name)
		assert.Empty(t, c.Value, name)
		assert.True(t, c.Secure, name)
	}
	assert.Len(t, cookiesByName(once), 3)
	assert.Equal(t, cookiesByName(once), cookiesByName(twice))

	res, err := s.Read(requestWith(twice))
	require.NoError(t, err)
	assert.Equal(t, ReadResult{}, res)
}

func TestCookieValuesFitBrowserLimit(t *testing.T) {
	s := NewStore(newCodec(), hashKey, Options{})
	h := http.Header{}
	_, err := s.Persist(h, ana, PersistOptions{RememberMe: true})
	require.NoError(t, err)

	for _, v := range h.Values("Set-Cookie") {
		assert.Less(t, len(v), 4096, strings.SplitN(v, "=", 2)[0])
	}
}
