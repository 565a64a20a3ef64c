package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/venue-ops/collab/internal/app/collabapi"
	"github.com/venue-ops/collab/internal/app/identity"
	"github.com/venue-ops/collab/internal/app/lifecycle"
	"github.com/venue-ops/collab/internal/app/query"
	"github.com/venue-ops/collab/internal/app/roster"
	"github.com/venue-ops/collab/internal/messaging"
	"github.com/venue-ops/collab/internal/platform/dbpool"
	"github.com/venue-ops/collab/internal/platform/env"
	"github.com/venue-ops/collab/internal/platform/memo"
	"github.com/venue-ops/collab/internal/platform/metrics"
	"github.com/venue-ops/collab/internal/platform/natsutil"
)

type schemaOwner interface {
	EnsureSchema(ctx context.Context) error
}

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := env.Load()
	if err != nil {
		log.Fatal(err)
	}

	pool, err := dbpool.New(runCtx, cfg.DatabaseURL, cfg.DB)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	identityRepo := identity.NewPostgresRepository(pool)
	lifecycleRepo := lifecycle.NewPostgresRepository(pool)
	rosterRepo := roster.NewPostgresRepository(pool)
	for _, s := range []struct {
		name  string
		owner schemaOwner
	}{
		{"identity", identityRepo},
		{"lifecycle", lifecycleRepo},
		{"roster", rosterRepo},
	} {
		if err := waitForSchema(runCtx, s.name, s.owner, 30*time.Second); err != nil {
			log.Fatal(err)
		}
	}

	client, err := natsutil.ConnectJetStreamWithRetry(cfg.NATSURL, cfg.NATSConnectTimeout)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()
	if err := messaging.EnsureStreams(client.JS); err != nil {
		log.Fatal(err)
	}

	identitySvc := identity.NewService(identityRepo, identity.NewTokenManager(cfg.JWTSecret))
	rosterSync := roster.NewSynchronizer(rosterRepo, identitySvc, log.New(os.Stderr, "roster ", log.LstdFlags))

	orch := lifecycle.NewOrchestrator(
		lifecycleRepo,
		lifecycle.NewMilestoneStore(lifecycleRepo),
		lifecycle.NewMessageLog(lifecycleRepo),
		rosterSync,
	)
	orch.Logger = log.New(os.Stderr, "lifecycle ", log.LstdFlags)
	orch.Publish = natsutil.JetStreamPublisher{JS: client.JS}.Publish

	var redisMemo *memo.Redis
	if cfg.RedisURL != "" {
		redisMemo, err = memo.NewRedisFromURL(cfg.RedisURL)
		if err != nil {
			log.Fatal(err)
		}
		defer redisMemo.Close()
		orch.Memo = redisMemo
	}

	handler := collabapi.NewHandler(orch, lifecycle.NewEventCatalog(lifecycleRepo), identitySvc, query.NewRepository(pool), cfg.UIOrigin)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := checkReadiness(r.Context(), pool, client, redisMemo); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.DefaultHandler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	fmt.Printf("Collaboration API listening on %s\n", cfg.APIAddr)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Fatal(err)
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("collab-api graceful shutdown failed: %v", err)
	}
}

func waitForSchema(ctx context.Context, name string, owner schemaOwner, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = owner.EnsureSchema(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		log.Printf("waiting for %s schema readiness: %v", name, lastErr)
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}

func checkReadiness(ctx context.Context, pool *pgxpool.Pool, client *natsutil.Client, redisMemo *memo.Redis) error {
	if err := client.Ready(); err != nil {
		return err
	}

	checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	if err := pool.Ping(checkCtx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	if redisMemo != nil {
		if err := redisMemo.Ping(checkCtx); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
	}
	return nil
}
