package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "posagent", cfg.App.Name)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "pos.db", cfg.Database.Path)
	assert.Equal(t, 1, cfg.Database.MaxOpenConns)
	assert.Equal(t, "http://localhost:8080", cfg.Remote.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Sync.CallTimeout)
	assert.Equal(t, "database", cfg.Sync.IdempotencyBackend)
	assert.Equal(t, "127.0.0.1:8765", cfg.HTTP.Addr)
	assert.Equal(t, 10, cfg.HTTP.SyncRateLimit)
	assert.Equal(t, time.Minute, cfg.HTTP.SyncRateWindow)
	assert.Equal(t, uuid.Nil, cfg.App.Branch())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	branch := uuid.New()
	t.Setenv("POS_APP_BRANCH_ID", branch.String())
	t.Setenv("POS_REMOTE_BASE_URL", "https://api.example.com")
	t.Setenv("POS_SYNC_CALL_TIMEOUT", "3s")
	t.Setenv("POS_DATABASE_DRIVER", "postgres")
	t.Setenv("POS_SYNC_IDEMPOTENCY_BACKEND", "redis")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, branch, cfg.App.Branch())
	assert.Equal(t, "https://api.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Sync.CallTimeout)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, "redis", cfg.Sync.IdempotencyBackend)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	content := `
[app]
terminal_id = "till-3"

[sync]
poll_interval = "1m"
batch_size = 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "till-3", cfg.App.TerminalID)
	assert.Equal(t, time.Minute, cfg.Sync.PollInterval)
	assert.Equal(t, 5, cfg.Sync.BatchSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		set     map[string]any
		wantErr string
	}{
		{"bad driver", map[string]any{"database.driver": "mysql"}, "database.driver"},
		{"relative url", map[string]any{"remote.base_url": "api.local"}, "remote.base_url"},
		{"bad branch", map[string]any{"app.branch_id": "branch-1"}, "app.branch_id"},
		{"bad backend", map[string]any{"sync.idempotency_backend": "memcached"}, "sync.idempotency_backend"},
		{"production over http", map[string]any{"app.env": "production", "remote.token": "t"}, "https"},
		{"production without token", map[string]any{"app.env": "production", "remote.base_url": "https://x.io"}, "remote.token"},
		{"sampling ratio", map[string]any{"telemetry.sampling_ratio": 2.0}, "sampling_ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			for k, val := range tt.set {
				v.Set(k, val)
			}
			_, err := fromViper(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "pos", Password: "p@ss word", DBName: "pos", SSLMode: "disable"}
	assert.Equal(t, "postgres://pos:p%40ss%20word@db:5432/pos?sslmode=disable", d.DSN())
}
