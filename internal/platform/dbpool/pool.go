package dbpool

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/venue-ops/collab/internal/platform/env"
)

const (
	defaultMinConns = 2
	defaultMaxConns = 20
)

func New(ctx context.Context, databaseURL string, tuning env.DBConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	minConns, maxConns := clampConns(tuning.MinConns, tuning.MaxConns)
	cfg.MinConns = int32(minConns)
	cfg.MaxConns = int32(maxConns)
	if tuning.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = tuning.MaxConnLifetime
	}
	if tuning.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = tuning.MaxConnIdleTime
	}
	if tuning.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = tuning.HealthCheckPeriod
	}

	return pgxpool.NewWithConfig(ctx, cfg)
}

func clampConns(minConns, maxConns int) (int, int) {
	if minConns < 0 {
		minConns = defaultMinConns
	}
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	if minConns > maxConns {
		minConns = maxConns
	}
	return minConns, maxConns
}
