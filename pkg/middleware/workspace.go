// pkg/middleware/workspace.go
package middleware

import (
	"context"
	"net/http"
)

type ctxWorkspaceKey struct{}

// WithWorkspace reads the X-Workspace-Id header and stores it in context. An
// absent header means the request runs in the global scope; that is not an
// error.
func WithWorkspace() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ws := r.Header.Get("X-Workspace-Id"); ws != "" {
				r = r.WithContext(context.WithValue(r.Context(), ctxWorkspaceKey{}, ws))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WorkspaceFrom(ctx context.Context) string {
	if v := ctx.Value(ctxWorkspaceKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
