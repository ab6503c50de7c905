/*
Package session runs the access/refresh lifecycle of a cookie session.

Decide maps what was read from the cookies to an Action without touching any I/O.
Manager.Apply carries the Action out: it checks the refresh revocation list, reloads the
identity from storage and re-persists the access and display cookies.
*/
package session

// State is the outcome of evaluating a request's session.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateAuthenticatedRefreshed
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateAuthenticatedRefreshed:
		return "authenticated_refreshed"
	default:
		return "unauthenticated"
	}
}

// IsAuthenticated reports whether s carries an identity.
func (s State) IsAuthenticated() bool {
	return s == StateAuthenticated || s == StateAuthenticatedRefreshed
}

// Action is what Apply must do for a request.
type Action int

const (
	// ActionReject ends in StateUnauthenticated with no I/O.
	ActionReject Action = iota

	// ActionAccept trusts the valid access credential as-is.
	ActionAccept

	// ActionRefreshOrAccept refreshes ahead of expiry, keeping the access identity on failure.
	ActionRefreshOrAccept

	// ActionRefreshOrReject refreshes because the access credential is unusable.
	ActionRefreshOrReject
)

func (a Action) String() string {
	switch a {
	case ActionAccept:
		return "accept"
	case ActionRefreshOrAccept:
		return "refresh_or_accept"
	case ActionRefreshOrReject:
		return "refresh_or_reject"
	default:
		return "reject"
	}
}

// Input is the cookie-derived view Decide works on.
type Input struct {
	AccessValid      bool
	RefreshValid     bool
	HasDisplay       bool
	ProactiveRefresh bool
}

// Decide picks the Action for in. A refresh is only attempted when both the refresh
// credential and the display cookie are present.
func Decide(in Input) Action {
	canRefresh := in.RefreshValid && in.HasDisplay

	switch {
	case in.AccessValid && !in.ProactiveRefresh:
		return ActionAccept
	case in.AccessValid && canRefresh:
		return ActionRefreshOrAccept
	case !in.AccessValid && canRefresh:
		return ActionRefreshOrReject
	case in.AccessValid:
		return ActionAccept
	default:
		return ActionReject
	}
}
