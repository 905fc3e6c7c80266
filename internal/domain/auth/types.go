// Package auth contains domain-level types for the caller identity the job
// core trusts verbatim. Session establishment and role policy live in the
// surrounding application; this core only consumes the resolved tuple.
package auth

import "context"

// Role represents an application's authorization role.
// Keep string form for easy persistence and cookies.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleLawyer Role = "lawyer"
	RoleStaff  Role = "staff"
)

// Identity is the (user, organization, role) tuple supplied by the
// authorization context provider for the current caller.
type Identity struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
	Role   Role   `json:"role"`
}

// Provider supplies the caller identity for a request context.
// Implementations are out of scope for the job core.
type Provider interface {
	Identity(ctx context.Context) (Identity, error)
}

type identityKey struct{}

// WithIdentity returns a context carrying the given identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom extracts the identity from the context, if present.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
