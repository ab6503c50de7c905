package session

import (
	"context"

	"chatgate/internal/app/user"
)

type contextKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id user.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFrom returns the identity stored by the auth middleware.
func IdentityFrom(ctx context.Context) (user.Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(user.Identity)
	return id, ok
}
