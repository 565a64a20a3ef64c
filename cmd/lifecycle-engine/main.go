package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/venue-ops/collab/internal/app/engine"
	"github.com/venue-ops/collab/internal/app/identity"
	"github.com/venue-ops/collab/internal/app/lifecycle"
	"github.com/venue-ops/collab/internal/app/roster"
	"github.com/venue-ops/collab/internal/messaging"
	"github.com/venue-ops/collab/internal/platform/dbpool"
	"github.com/venue-ops/collab/internal/platform/env"
	"github.com/venue-ops/collab/internal/platform/memo"
	"github.com/venue-ops/collab/internal/platform/natsutil"
)

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

	lifecycleRepo := lifecycle.NewPostgresRepository(pool)
	rosterRepo := roster.NewPostgresRepository(pool)
	identityRepo := identity.NewPostgresRepository(pool)
	if err := waitForPostgres(runCtx, 30*time.Second, lifecycleRepo.EnsureSchema, rosterRepo.EnsureSchema, identityRepo.EnsureSchema); err != nil {
		log.Fatal(err)
	}

	client, err := natsutil.ConnectJetStreamWithRetry(cfg.NATSURL, cfg.NATSConnectTimeout)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()
	if err := messaging.EnsureStreams(client.JS); err != nil {
		log.Fatal(err)
	}
	publisher := natsutil.JetStreamPublisher{JS: client.JS}

	identitySvc := identity.NewService(identityRepo, identity.NewTokenManager(cfg.JWTSecret))
	orch := lifecycle.NewOrchestrator(
		lifecycleRepo,
		lifecycle.NewMilestoneStore(lifecycleRepo),
		lifecycle.NewMessageLog(lifecycleRepo),
		roster.NewSynchronizer(rosterRepo, identitySvc, log.New(os.Stderr, "roster ", log.LstdFlags)),
	)
	orch.Logger = log.New(os.Stderr, "lifecycle ", log.LstdFlags)
	orch.Publish = publisher.Publish
	if cfg.RedisURL != "" {
		redisMemo, err := memo.NewRedisFromURL(cfg.RedisURL)
		if err != nil {
			log.Fatal(err)
		}
		defer redisMemo.Close()
		orch.Memo = redisMemo
	}

	service := engine.NewService(orch, lifecycleRepo, publisher.Publish)
	service.Logger = log.New(os.Stderr, "engine ", log.LstdFlags)

	sub, err := client.JS.QueueSubscribe(messaging.CommandSubjects, "lifecycle-engine", func(msg *nats.Msg) {
		handleCtx, cancel := context.WithTimeout(runCtx, 10*time.Second)
		defer cancel()
		if err := service.Handle(handleCtx, msg.Subject, msg.Data); err != nil {
			switch {
			case errors.Is(err, engine.ErrInvalidCommandPayload):
				log.Printf("discarding invalid command payload: %v", err)
				_ = msg.Term()
			case errors.Is(err, engine.ErrUnsupportedCommandAction):
				log.Printf("discarding unsupported command action: %v", err)
				_ = msg.Term()
			case errors.Is(err, engine.ErrUnknownInvitation):
				log.Printf("discarding command for unknown invitation: %v", err)
				_ = msg.Term()
			default:
				log.Printf("command processing failed: %v", err)
				_ = msg.Nak()
			}
			return
		}
		_ = msg.Ack()
	}, nats.ManualAck())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	log.Println("Lifecycle Engine listening on subject:", sub.Subject)
	go service.RunSweeper(runCtx, cfg.SweepInterval)

	<-runCtx.Done()
}

func waitForPostgres(ctx context.Context, timeout time.Duration, ensure ...func(context.Context) error) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = nil
		for _, fn := range ensure {
			if lastErr = fn(attemptCtx); lastErr != nil {
				break
			}
		}
		cancel()

		if lastErr == nil {
			return nil
		}
		log.Printf("waiting for postgres readiness: %v", lastErr)
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}
