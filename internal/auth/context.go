package auth

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type contextKey string

const (
	contextKeyIdentity contextKey = "auth.identity"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	TenantID string
	Role     Role
	Subject  string
	// Address is the counterparty the caller acts for. Zero when the subject
	// is not an address.
	Address common.Address
}

// WithIdentity stores auth identity details in context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, identity)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(contextKeyIdentity).(Identity)
	return identity, ok
}

// TenantIDFromContext extracts tenant id from context.
func TenantIDFromContext(ctx context.Context) string {
	identity, _ := IdentityFromContext(ctx)
	return identity.TenantID
}

// RoleFromContext extracts role from context.
func RoleFromContext(ctx context.Context) Role {
	identity, _ := IdentityFromContext(ctx)
	return identity.Role
}

// SubjectFromContext extracts subject from context.
func SubjectFromContext(ctx context.Context) string {
	identity, _ := IdentityFromContext(ctx)
	return identity.Subject
}

// CallerFromContext returns the counterparty address of the caller.
func CallerFromContext(ctx context.Context) (common.Address, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok || identity.Address == (common.Address{}) {
		return common.Address{}, false
	}
	return identity.Address, true
}
