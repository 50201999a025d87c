// pkg/middleware/auth.go
package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"dashvault/pkg/config"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// jwksCache caches JWKS sets per URL.
type jwksCache struct {
	mu   sync.RWMutex
	sets map[string]cachedJWKS
}

type cachedJWKS struct {
	set     jwk.Set
	expires time.Time
}

func (c *jwksCache) get(ctx context.Context, url string, ttl time.Duration) (jwk.Set, error) {
	c.mu.RLock()
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		c.mu.RUnlock()
		return e.set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets == nil {
		c.sets = map[string]cachedJWKS{}
	}
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		return e.set, nil
	}
	set, err := jwk.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.sets[url] = cachedJWKS{set: set, expires: time.Now().Add(ttl)}
	return set, nil
}

const acceptableSkew = 60 * time.Second

// JWTAuth validates access tokens and populates the caller Principal in
// context. The admin claims are read as tri-state: a missing claim leaves the
// corresponding flag nil.
func JWTAuth(cfg config.Config) func(http.Handler) http.Handler {
	cache := &jwksCache{}
	jwksTTL := 6 * time.Hour
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Bypass auth for health and metrics endpoints
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			// In dev, allow requests without Authorization to pass through
			// (facilitates local bring-up)
			authz := r.Header.Get("Authorization")
			if cfg.Env == "dev" && strings.TrimSpace(authz) == "" {
				next.ServeHTTP(w, r)
				return
			}

			issuer := strings.TrimRight(cfg.Issuer, "/")
			if issuer == "" || cfg.JWKSURL == "" {
				http.Error(w, "auth not configured", http.StatusInternalServerError)
				return
			}

			set, err := cache.get(r.Context(), cfg.JWKSURL, jwksTTL)
			if err != nil {
				http.Error(w, "jwks fetch failed", http.StatusInternalServerError)
				return
			}

			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				http.Error(w, "missing bearer", http.StatusUnauthorized)
				return
			}
			raw := strings.TrimSpace(authz[len("Bearer "):])

			parseOpts := []jwt.ParseOption{jwt.WithKeySet(set), jwt.WithIssuer(issuer), jwt.WithValidate(true), jwt.WithVerify(true), jwt.WithAcceptableSkew(acceptableSkew)}
			if cfg.Audience != "" {
				parseOpts = append(parseOpts, jwt.WithAudience(cfg.Audience))
			}
			jt, perr := jwt.Parse([]byte(raw), parseOpts...)
			if perr != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			p := Principal{Subject: jt.Subject()}
			if v, ok := jt.Get("dashboard_admin"); ok {
				if b, ok := v.(bool); ok {
					p.IsPrivilegedAdmin = &b
				}
			}
			if v, ok := jt.Get("resource_admin"); ok {
				if b, ok := v.(bool); ok {
					p.IsResourceAdmin = &b
				}
			}
			if sc, ok := jt.Get("scope"); ok {
				if s, _ := sc.(string); s != "" {
					p.Scopes = strings.Fields(s)
				}
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
