package auth

import "context"

// Principal captures the authenticated identity propagated through
// the request context by the session middleware.
type Principal struct {
	// UserID references the backing users row.
	UserID string
	// SessionID references the live session validated for this request.
	SessionID string
	// Username and Email are carried for handlers and log lines.
	Username string
	Email    string
}

type principalContextKey struct{}

// WithPrincipal stores the authenticated principal on the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFrom retrieves the authenticated principal from the context.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
