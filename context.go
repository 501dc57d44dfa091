package tourguard

import (
	"context"
	"net/http"
)

type contextKey string

const userContextKey contextKey = "tourguard_user"

// WithUser attaches the resolved identity to a request context.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext returns nil for anonymous requests.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userContextKey).(*User)
	return u
}

// Convenience for handlers.
func CurrentUser(r *http.Request) *User {
	return UserFromContext(r.Context())
}
