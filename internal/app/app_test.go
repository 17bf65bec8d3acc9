package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmehdipour/fintrack/internal/config"
	"github.com/jmehdipour/fintrack/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Queue.Path = filepath.Join(t.TempDir(), "queue.db")
	return cfg
}

func TestBuildHTTPRemote(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.MaxRetries = 7

	a, err := Build(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.IsType(t, &remote.Pool{}, a.Remote)
	assert.Nil(t, a.Replays)
	assert.Nil(t, a.Redis)
	assert.Nil(t, a.Probe)
	assert.Equal(t, 7, a.Drainer.MaxRetries)
	assert.Equal(t, cfg.Connectivity.InitialOnline, a.Queue.IsOnline())

	n, err := a.Store.Size(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBuildRejectsUnusableRemote(t *testing.T) {
	t.Run("no enabled endpoints", func(t *testing.T) {
		cfg := testConfig(t)
		for i := range cfg.Remote.Endpoints {
			cfg.Remote.Endpoints[i].Enabled = false
		}
		_, err := Build(cfg, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("kafka without brokers", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Remote.Kind = config.RemoteKafka
		_, err := Build(cfg, zap.NewNop())
		assert.ErrorContains(t, err, "kafka.brokers")
	})

	t.Run("mysql without dsn", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Remote.Kind = config.RemoteMySQL
		_, err := Build(cfg, zap.NewNop())
		assert.ErrorContains(t, err, "mysql")
	})
}

func TestBuildWithProbe(t *testing.T) {
	cfg := testConfig(t)
	cfg.Connectivity.ProbeURL = "http://127.0.0.1:1/healthz"

	a, err := Build(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NotNil(t, a.Probe)
	a.Settle(context.Background())
	assert.False(t, a.Switch.IsOnline())
}

func TestAssumeOnlineWithoutProbe(t *testing.T) {
	cfg := testConfig(t)
	cfg.Connectivity.InitialOnline = false

	a, err := Build(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	reconnect := a.Switch.Subscribe()
	assert.True(t, a.AssumeOnlineWithoutProbe())
	assert.True(t, a.Drainer.Online.IsOnline())
	select {
	case <-reconnect:
	default:
		t.Fatal("expected a reconnect signal")
	}

	cfg = testConfig(t)
	cfg.Connectivity.ProbeURL = "http://127.0.0.1:1/healthz"
	b, err := Build(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	assert.False(t, b.AssumeOnlineWithoutProbe())
	assert.False(t, b.Switch.IsOnline())
}
