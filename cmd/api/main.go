package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"authly.org/internal/auth"
	"authly.org/internal/httpapi"
	"authly.org/internal/obs"
	"authly.org/internal/store/memory"
	"authly.org/internal/store/pg"
)

var version = "0.3.0"

func main() {
	// Local overrides from .env; absent file is fine.
	_ = godotenv.Load()

	obs.Init()

	signingKey := os.Getenv("AUTHLY_SIGNING_KEY")
	if signingKey == "" {
		log.Fatal("AUTHLY_SIGNING_KEY is required")
	}

	opts := []auth.ServiceOption{
		auth.WithIssuer(envOr("AUTHLY_ISSUER", "authly")),
	}
	if raw := os.Getenv("AUTHLY_ROOT_IPS"); raw != "" {
		opts = append(opts, auth.WithRootIPs(strings.Split(raw, ",")))
	}
	if raw := os.Getenv("AUTHLY_ACCESS_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("parse AUTHLY_ACCESS_TTL: %v", err)
		}
		opts = append(opts, auth.WithAccessTTL(ttl))
	}

	// Store selection: PostgreSQL when a DSN is set, in-memory otherwise.
	var (
		store   auth.Store
		probe   httpapi.ReadyProbe
		cleanup func()
	)
	if dsn := os.Getenv("AUTHLY_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
		cleanup = func() { _ = pgStore.Close() }
	} else {
		log.Print("AUTHLY_PG_DSN not set, using in-memory store")
		store = memory.New()
		cleanup = func() {}
	}

	svc, err := auth.NewService(store, signingKey, opts...)
	if err != nil {
		log.Fatalf("init service: %v", err)
	}

	api := httpapi.New(svc, probe, version)
	handler := httpapi.SecurityHeaders(
		httpapi.RateLimit(
			httpapi.MaxBodyBytes(httpapi.Logging(api.Handler()), 1<<20),
			20, 10,
		),
	)

	srv := &http.Server{
		Addr:              envOr("AUTHLY_ADDR", ":8080"),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting authly-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	cleanup()
	log.Println("Stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
