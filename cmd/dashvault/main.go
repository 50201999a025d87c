// cmd/dashvault/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dashvault/internal/accesspolicy"
	"dashvault/internal/api"
	"dashvault/internal/objects"
	"dashvault/internal/objects/memory"
	"dashvault/internal/objects/postgres"
	"dashvault/internal/objects/rediscache"
	"dashvault/internal/policy"
	"dashvault/internal/vault"
	"dashvault/pkg/authschemes"
	"dashvault/pkg/config"
	"dashvault/pkg/db"
	"dashvault/pkg/logger"
	"dashvault/pkg/middleware"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	pool := db.MustConnect(cfg, log)
	rdb := db.MustRedis(cfg, log)

	var store objects.Store
	if pool != nil {
		if cfg.AutoMigrate {
			if err := postgres.EnsureSchema(context.Background(), pool); err != nil {
				log.Fatalw("schema", "err", err)
			}
		}
		store = postgres.New(pool, log)
	} else {
		store = memory.New()
	}
	if rdb != nil {
		store = rediscache.New(store, rdb, cfg.RedisCacheTTL, log)
	}

	masterKey := cfg.MasterKey
	if masterKey == "" {
		masterKey = "dashvault-dev-key"
	}

	var schemes policy.AuthSchemeLookup
	if cfg.AuthSchemeDir != "" {
		reg, err := authschemes.LoadDir(cfg.AuthSchemeDir)
		if err != nil {
			log.Fatalw("auth schemes", "dir", cfg.AuthSchemeDir, "err", err)
		}
		log.Infow("auth schemes loaded", "names", reg.Names())
		schemes = reg.Has
	}

	pipeline, err := policy.NewPipeline(store, policy.Config{
		Encrypter:            vault.New(masterKey),
		AuthSchemes:          schemes,
		EditMode:             policy.EditMode(cfg.EditMode),
		ManageableBy:         policy.ManageableBy(cfg.ManageableBy),
		DeniedWorkspaceTypes: cfg.DeniedWorkspaceTypes,
	})
	if err != nil {
		log.Fatalw("policy config", "err", err)
	}

	gate, err := accesspolicy.New(context.Background(), cfg.AccessPolicyFile)
	if err != nil {
		log.Fatalw("access policy", "err", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.Tracing(cfg))
	r.Use(middleware.WithWorkspace())
	r.Use(middleware.JWTAuth(cfg))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	api.NewHandler(log, pipeline, gate).Routes(r)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Infow("dashvault listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("dashvault stopped")
}
