// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// Policy pipeline knobs
	EditMode             string // "", "admin_only" or "read_only"
	ManageableBy         string // "", "all", "none" or "dashboard_admin"
	DeniedWorkspaceTypes []string

	// Credential sealing
	MasterKey     string
	AuthSchemeDir string

	// Optional rego gate
	AccessPolicyFile string

	// OIDC / JWT
	Issuer   string
	Audience string
	JWKSURL  string

	// Redis & Postgres
	RedisURL      string
	RedisCacheTTL time.Duration
	DatabaseURL   string
	AutoMigrate   bool

	// Tracing
	OTLPEndpoint string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                  env("DASHVAULT_ENV", "dev"),
		HTTPAddr:             env("DASHVAULT_HTTP_ADDR", ":8080"),
		EditMode:             env("DASHVAULT_EDIT_MODE", ""),
		ManageableBy:         env("DASHVAULT_MANAGEABLE_BY", ""),
		DeniedWorkspaceTypes: envList("DASHVAULT_DENIED_WORKSPACE_TYPES"),
		MasterKey:            env("DASHVAULT_MASTER_KEY", ""),
		AuthSchemeDir:        env("DASHVAULT_AUTH_SCHEME_DIR", ""),
		AccessPolicyFile:     env("DASHVAULT_ACCESS_POLICY_FILE", ""),
		Issuer:               env("OIDC_ISSUER", ""),
		Audience:             env("OIDC_AUDIENCE", "dashvault"),
		JWKSURL:              env("JWKS_URL", ""),
		RedisURL:             env("REDIS_URL", ""),
		RedisCacheTTL:        envDur("REDIS_CACHE_TTL_SEC", 300) * time.Second,
		DatabaseURL:          env("DATABASE_URL", ""),
		AutoMigrate:          envBool("DASHVAULT_AUTO_MIGRATE", true),
		OTLPEndpoint:         env("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set — using in-memory saved-object store for dev")
	}
	if cfg.MasterKey == "" {
		log.Println("[WARN] DASHVAULT_MASTER_KEY not set — using dev key, credentials are NOT protected")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
func envList(k string) []string {
	v := os.Getenv(k)
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
