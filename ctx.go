package bank

import (
	"context"

	"github.com/goliatone/go-router"
)

var principalCtxKey = &contextKey{"principal"}

type contextKey struct {
	name string
}

// WithContext sets the Principal in the given context
func WithContext(r context.Context, principal *Principal) context.Context {
	return context.WithValue(r, principalCtxKey, principal)
}

// FromContext finds the principal from the context.
func FromContext(ctx context.Context) (*Principal, bool) {
	raw, ok := ctx.Value(principalCtxKey).(*Principal)
	return raw, ok && raw != nil
}

// SessionFromContext returns the session behind the current request
func SessionFromContext(ctx context.Context) (*Session, bool) {
	p, ok := FromContext(ctx)
	if !ok || p.Session == nil {
		return nil, false
	}
	return p.Session, true
}

// UserFromContext returns the user behind the current request
func UserFromContext(ctx context.Context) (*User, bool) {
	p, ok := FromContext(ctx)
	if !ok || p.User == nil {
		return nil, false
	}
	return p.User, true
}

// GetRouterPrincipal extracts the Principal from the router locals
func GetRouterPrincipal(ctx router.Context, key string) (*Principal, bool) {
	if key == "" {
		key = DefaultOptions().ContextKey
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	p, ok := raw.(*Principal)
	return p, ok && p != nil
}
