package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	require.Empty(t, cfg.Database.URL)
	require.Equal(t, 180*time.Second, cfg.Jobs.StepTimeout)
	require.Equal(t, 256, cfg.Jobs.SubscriberBuffer)
	require.Equal(t, "/bin/sh", cfg.Jobs.Shell)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recon.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9000

[jobs]
dir = "/var/lib/recon"
step_timeout = "30s"
`), 0o644))

	t.Setenv("RECON_JOBS_STEP_TIMEOUT", "2m")
	t.Setenv("RECON_DATABASE_MAX_CONNECTIONS", "4")
	t.Setenv("RECON_LOGGING_LEVEL", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, "/var/lib/recon", cfg.Jobs.Dir)
	require.Equal(t, 2*time.Minute, cfg.Jobs.StepTimeout)
	require.Equal(t, 4, cfg.Database.MaxConnections)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRejects(t *testing.T) {
	t.Setenv("RECON_JOBS_STEP_TIMEOUT", "0s")
	_, err := Load("")
	require.ErrorContains(t, err, "step_timeout")

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	require.Equal(t, "server.port", envKey("RECON_SERVER_PORT"))
	require.Equal(t, "jobs.subscriber_buffer", envKey("RECON_JOBS_SUBSCRIBER_BUFFER"))
	require.Equal(t, "debug", envKey("RECON_DEBUG"))
}
