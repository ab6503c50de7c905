package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"chatgate/internal/app/user"
	"chatgate/internal/pkg/auth/cookie"
	"chatgate/internal/pkg/errs"
	"chatgate/internal/pkg/logx"
	"chatgate/internal/pkg/metrics"
)

// RefreshedHeader is set to "true" on responses whose session was silently refreshed.
const RefreshedHeader = "X-Token-Refreshed"

// CookieStore is the cookie persistence the Manager drives.
type CookieStore interface {
	Persist(h http.Header, id user.Identity, po cookie.PersistOptions) (cookie.Issued, error)
	Read(r *http.Request) (cookie.ReadResult, error)
	Clear(h http.Header)
}

// UserLookup loads the current identity of an account. A missing account is ErrUserNotFound.
type UserLookup interface {
	GetIdentity(ctx context.Context, id int64) (user.Identity, error)
}

// ExpiryChecker decides whether a credential is close enough to expiry to refresh early.
type ExpiryChecker interface {
	IsExpiringSoon(token string, threshold time.Duration) bool
}

// Result is the evaluated session of one request.
type Result struct {
	State     State
	Identity  user.Identity
	Refreshed bool
}

// Config tunes the Manager.
type Config struct {
	// RefreshThreshold is how close to expiry a valid access credential gets refreshed.
	RefreshThreshold time.Duration
}

// Manager evaluates and mutates sessions.
type Manager struct {
	cookies CookieStore
	users   UserLookup
	revoked Revocations
	expiry  ExpiryChecker
	cfg     Config
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewManager wires a Manager. m may be nil.
func NewManager(cookies CookieStore, users UserLookup, revoked Revocations, expiry ExpiryChecker, cfg Config, m *metrics.Metrics) *Manager {
	return &Manager{
		cookies: cookies,
		users:   users,
		revoked: revoked,
		expiry:  expiry,
		cfg:     cfg,
		metrics: m,
		logger:  logx.Component("session"),
		now:     time.Now,
	}
}

var errAccountInactive = errors.New("account is not active")

// Start persists a new session for id, as after a successful login.
func (m *Manager) Start(h http.Header, id user.Identity, rememberMe bool) (cookie.Issued, error) {
	return m.cookies.Persist(h, id, cookie.PersistOptions{RememberMe: rememberMe})
}

// Authenticate reads the session cookies of r and evaluates them, refreshing ahead of
// expiry when the access credential is within the refresh threshold.
func (m *Manager) Authenticate(ctx context.Context, h http.Header, r *http.Request) (Result, error) {
	read, err := m.cookies.Read(r)
	if err != nil {
		return Result{State: StateUnauthenticated}, err
	}

	return m.Evaluate(ctx, h, read, func(rr cookie.ReadResult) bool {
		return m.expiry.IsExpiringSoon(rr.AccessToken, m.cfg.RefreshThreshold)
	})
}

// ForceRefresh evaluates r as if the access credential were about to expire.
func (m *Manager) ForceRefresh(ctx context.Context, h http.Header, r *http.Request) (Result, error) {
	read, err := m.cookies.Read(r)
	if err != nil {
		return Result{State: StateUnauthenticated}, err
	}

	return m.Evaluate(ctx, h, read, func(cookie.ReadResult) bool { return true })
}

// Evaluate runs Decide on read and applies the resulting Action. proactive is only
// consulted when the access credential is valid.
func (m *Manager) Evaluate(ctx context.Context, h http.Header, read cookie.ReadResult, proactive func(cookie.ReadResult) bool) (Result, error) {
	in := Input{
		AccessValid:  read.HasAccess(),
		RefreshValid: read.HasRefresh(),
		HasDisplay:   read.Display != nil,
	}
	if in.AccessValid && proactive != nil {
		in.ProactiveRefresh = proactive(read)
	}

	res, err := m.Apply(ctx, h, read, Decide(in))
	m.metrics.SessionEvaluated(res.State.String())
	return res, err
}

// Apply performs action. A refresh that fails while the access credential is unusable
// clears every session cookie; a signing failure is also returned as an error. A revoked
// refresh credential ends the session whatever the action.
func (m *Manager) Apply(ctx context.Context, h http.Header, read cookie.ReadResult, action Action) (Result, error) {
	switch action {
	case ActionAccept:
		if read.Access == nil {
			return Result{State: StateUnauthenticated}, nil
		}
		return Result{State: StateAuthenticated, Identity: read.Access.Identity()}, nil

	case ActionRefreshOrAccept, ActionRefreshOrReject:
		if read.Refresh == nil {
			return m.Apply(ctx, h, read, ActionAccept)
		}

	default:
		return Result{State: StateUnauthenticated}, nil
	}

	logger := m.logger.With().
		Int64("user_id", read.Refresh.UserID).
		Str("action", action.String()).
		Logger()

	id, err := m.refresh(ctx, h, read)
	if err == nil {
		logger.Debug().Msg("Session refreshed")
		return Result{State: StateAuthenticatedRefreshed, Identity: id, Refreshed: true}, nil
	}

	if errors.Is(err, errAccountInactive) || errs.HasCode(err, errs.ErrUserNotFound) {
		logger.Info().Err(err).Msg("Session ended: account unavailable")
		m.cookies.Clear(h)
		return Result{State: StateUnauthenticated}, nil
	}

	if errs.HasCode(err, errs.ErrTokenRevoked) {
		logger.Info().Msg("Session ended: refresh credential revoked")
		m.cookies.Clear(h)
		return Result{State: StateUnauthenticated}, nil
	}

	if action == ActionRefreshOrAccept && read.Access != nil {
		logger.Warn().Err(err).Msg("Proactive refresh failed; keeping access credential")
		return Result{State: StateAuthenticated, Identity: read.Access.Identity()}, nil
	}

	// The access credential is unusable, so the session cannot survive a failed refresh.
	m.cookies.Clear(h)

	if errs.KindOf(err) == errs.KindSigning {
		logger.Error().Err(err).Msg("Session refresh could not sign credentials")
		return Result{State: StateUnauthenticated}, err
	}

	logger.Error().Err(err).Msg("Session refresh failed")
	return Result{State: StateUnauthenticated}, nil
}

// refresh re-hydrates the identity named by the refresh credential and re-persists the
// access and display cookies. The refresh cookie keeps its original lifetime.
func (m *Manager) refresh(ctx context.Context, h http.Header, read cookie.ReadResult) (user.Identity, error) {
	revoked, err := m.revoked.IsRevoked(ctx, read.Refresh.ID)
	if err != nil {
		return user.Identity{}, errs.Wrap(errs.ErrPersistence, err)
	}
	if revoked {
		return user.Identity{}, errs.NewError(errs.ErrTokenRevoked)
	}

	id, err := m.users.GetIdentity(ctx, read.Refresh.UserID)
	if err != nil {
		return user.Identity{}, err
	}

	if !id.IsActive() {
		return user.Identity{}, errAccountInactive
	}

	if _, err := m.cookies.Persist(h, id, cookie.PersistOptions{Fields: cookie.FieldAccess | cookie.FieldDisplay}); err != nil {
		return user.Identity{}, err
	}

	return id, nil
}

// End revokes the request's refresh credential, if any, and clears every session cookie.
// Cookies are cleared even when the revocation cannot be recorded.
func (m *Manager) End(ctx context.Context, h http.Header, r *http.Request) error {
	defer m.cookies.Clear(h)

	read, err := m.cookies.Read(r)
	if err != nil || read.Refresh == nil {
		return nil
	}

	ttl := read.Refresh.ExpiresAt.Sub(m.now())
	if err := m.revoked.Revoke(ctx, read.Refresh.ID, ttl); err != nil {
		return errs.Wrap(errs.ErrPersistence, err)
	}

	return nil
}
