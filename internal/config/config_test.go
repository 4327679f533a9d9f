package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 4567, cfg.Port)
	require.Equal(t, "data.json", cfg.CheckpointFile)
	require.Equal(t, 15*time.Second, cfg.CheckpointInterval)
	require.Equal(t, 30*time.Second, cfg.ProducerExpiry)
	require.Equal(t, 64, cfg.QueueSize)
	require.Empty(t, cfg.StatusPort)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("CHECKPOINT_INTERVAL", "1m")
	t.Setenv("PRODUCER_EXPIRY", "45s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Port)
	require.Equal(t, time.Minute, cfg.CheckpointInterval)
	require.Equal(t, 45*time.Second, cfg.ProducerExpiry)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("PORT", "70000")
	_, err = Load()
	require.Error(t, err)
}
