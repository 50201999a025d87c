// pkg/middleware/principal.go
package middleware

import (
	"context"
)

// Principal is the authenticated caller as seen by downstream handlers. The
// admin flags are tri-state: nil means the token carried no signal either way,
// which downstream authorization treats differently from an explicit false.
type Principal struct {
	Subject           string
	IsPrivilegedAdmin *bool
	IsResourceAdmin   *bool
	Scopes            []string
}

type principalCtxKey struct{}

// WithPrincipal stores the caller identity in context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFrom extracts the caller identity; the zero value means
// unauthenticated (dev passthrough).
func PrincipalFrom(ctx context.Context) Principal {
	if v := ctx.Value(principalCtxKey{}); v != nil {
		if p, ok := v.(Principal); ok {
			return p
		}
	}
	return Principal{}
}

// HasAnyScope returns true if the principal holds at least one of the
// required scopes.
func HasAnyScope(ctx context.Context, required []string) bool {
	if len(required) == 0 {
		return true
	}
	curr := PrincipalFrom(ctx).Scopes
	if len(curr) == 0 {
		return false
	}
	set := map[string]struct{}{}
	for _, s := range curr {
		set[s] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}
