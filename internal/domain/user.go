package domain

import (
	"context"

	"github.com/marchand/essence/internal/repository"
)

// User roles. The session provider is an external collaborator; the order
// flow only needs an identity and a role out of it.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

var (
	ErrSessionNotFound = &Error{Code: EUNAUTHORIZED, Message: "Session expired or invalid"}
	ErrAdminOnly       = &Error{Code: EFORBIDDEN, Message: "Administrator access required"}
)

// SessionVerifier resolves a session token to a user identity.
type SessionVerifier interface {
	// VerifySession returns the user owning the given session token, or
	// ErrSessionNotFound when the token is unknown or expired.
	VerifySession(ctx context.Context, token string) (*repository.User, error)
}

type userContextKey struct{}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, user *repository.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the authenticated user, or nil for anonymous
// requests (guest checkout, gateway callbacks).
func UserFromContext(ctx context.Context) *repository.User {
	if u, ok := ctx.Value(userContextKey{}).(*repository.User); ok {
		return u
	}
	return nil
}
