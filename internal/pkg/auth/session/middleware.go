package session

import (
	"net/http"

	"chatgate/internal/app/user"
	"chatgate/internal/pkg/errs"
	"chatgate/internal/pkg/resp"
)

// RequireAuth rejects requests without an active session with ErrUnauthorized.
// Refreshed cookies are written to the response and RefreshedHeader is set.
func (m *Manager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := m.Authenticate(r.Context(), w.Header(), r)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		if !res.State.IsAuthenticated() || !res.Identity.IsActive() {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		next.ServeHTTP(w, m.attach(w, r, res))
	})
}

// OptionalAuth attaches the identity when a session exists and lets every request through.
func (m *Manager) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := m.Authenticate(r.Context(), w.Header(), r)
		if err != nil || !res.State.IsAuthenticated() {
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, m.attach(w, r, res))
	})
}

// RequireRole must run after RequireAuth. It rejects identities below role with ErrForbidden.
func RequireRole(role user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}

			if !id.Role.AtLeast(role) {
				resp.RespondError(w, r, errs.NewError(errs.ErrForbidden))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *Manager) attach(w http.ResponseWriter, r *http.Request, res Result) *http.Request {
	if res.Refreshed {
		w.Header().Set(RefreshedHeader, "true")
	}
	return r.WithContext(WithIdentity(r.Context(), res.Identity))
}
