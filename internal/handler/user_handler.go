package handler

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"chatgate/internal/app/user"
	"chatgate/internal/pkg/auth/session"
	"chatgate/internal/pkg/errs"
	"chatgate/internal/pkg/req"
	"chatgate/internal/pkg/resp"
)

const (
	maxSearchQueryLength = 50
	defaultSearchLimit   = 20
	maxSearchLimit       = 50

	defaultUserPageLimit = 50
	maxUserPageLimit     = 100
)

// UserResult is another account as returned by user search.
type UserResult struct {
	user.Profile
	Online bool `json:"online"`
}

// HandleGetMe returns the authenticated identity loaded from storage for this request.
func HandleGetMe(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := session.IdentityFrom(r.Context())
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		online := false
		if deps.Gateway != nil {
			online = deps.Gateway.Presence().IsOnline(identity.ID)
		}

		data := map[string]any{
			"user":   identity,
			"online": online,
		}
		resp.RespondSuccess(w, r, data)
	}
}

// HandleSearchUsers finds active accounts by username or email substring, leaving out the
// caller. Only public profile fields are returned.
func HandleSearchUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := session.IdentityFrom(r.Context())
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if n := utf8.RuneCountInString(query); n < 1 || n > maxSearchQueryLength {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		limit, customErr := req.QueryInt(r, "limit", defaultSearchLimit, maxSearchLimit)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		found, err := deps.Users.SearchUsers(r.Context(), query, identity.ID, limit)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		results := make([]UserResult, 0, len(found))
		for _, u := range found {
			results = append(results, UserResult{
				Profile: u.Profile(),
				Online:  deps.Gateway != nil && deps.Gateway.Presence().IsOnline(u.ID),
			})
		}

		resp.RespondSuccess(w, r, map[string]any{
			"users": results,
		})
	}
}

// HandleListUsers returns one page of every account, for administrators.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, customErr := req.QueryInt(r, "page", 1, 0)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		limit, customErr := req.QueryInt(r, "limit", defaultUserPageLimit, maxUserPageLimit)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		users, hasMore, err := deps.Users.ListUsers(r.Context(), page, limit)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"users":   users,
			"page":    page,
			"limit":   limit,
			"hasMore": hasMore,
		})
	}
}
