package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DefaultAPIAddr, cfg.APIAddr)
	require.Equal(t, DefaultNATSURL, cfg.NATSURL)
	require.Equal(t, time.Minute, cfg.SweepInterval)
	require.Equal(t, 20, cfg.DB.MaxConns)
	require.Empty(t, cfg.RedisURL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("COLLAB_API_ADDR", ":9090")
	t.Setenv("REDIS_URL", DefaultRedisURL)
	t.Setenv("SWEEP_INTERVAL", "15s")
	t.Setenv("DB_MAX_CONNS", "4")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.APIAddr)
	require.Equal(t, DefaultRedisURL, cfg.RedisURL)
	require.Equal(t, 15*time.Second, cfg.SweepInterval)
	require.Equal(t, 4, cfg.DB.MaxConns)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")
	_, err := Load()
	require.Error(t, err)
}
