package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.Call.RingTimeout)
	assert.Equal(t, 5*time.Second, cfg.Call.DisconnectGrace)
	assert.Equal(t, 3, cfg.Call.MaxICERestarts)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICE.STUNURLs)

	p := cfg.RetryPolicy()
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, time.Second, p.InitialDelay)
	assert.Equal(t, 2.0, p.Multiplier)
	assert.Equal(t, 30*time.Second, p.MaxDelay)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel())
}

func TestFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	body := []byte("port: 9000\nlog:\n  level: debug\ncall:\n  ring_timeout: 10s\n  max_ice_restarts: 5\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("VOICECALL_CALL_DISCONNECT_GRACE", "2s")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel())

	opts := cfg.CallOptions()
	assert.Equal(t, 10*time.Second, opts.RingTimeout)
	assert.Equal(t, 2*time.Second, opts.DisconnectGrace)
	assert.Equal(t, 5, opts.MaxICERestarts)
	assert.Equal(t, 3, opts.Retry.MaxRetries)
}
