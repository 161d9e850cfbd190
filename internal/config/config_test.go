package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"territorycore/internal/blob"
	"territorycore/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 14*24*time.Hour, cfg.RecentWindow())
	assert.Zero(t, cfg.RefreshInterval())
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL())
	assert.Equal(t, blob.DefaultURLExpiry, cfg.ImageURLExpiry())
	require.NoError(t, cfg.Validate())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "territorycore.yaml")
	doc := `
storage:
  driver: postgres
  postgres_dsn: postgres://field@localhost/territories
blob:
  driver: s3
  s3:
    bucket: territory-images
    path_style: true
session:
  user_id: u1
  display_name: Ana
  admin: true
engine:
  recent_window: 72h
  refresh_interval: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, core.StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, "territory-images", cfg.Blob.S3.Bucket)
	assert.True(t, cfg.Blob.S3.PathStyle)
	assert.True(t, cfg.Session.HasAdminCredentials())
	assert.Equal(t, 72*time.Hour, cfg.RecentWindow())
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval())
	assert.Equal(t, "info", cfg.Logging.Level, "unset keys keep their defaults")
	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TERRITORYCORE_STORAGE_DRIVER", "memory")
	t.Setenv("TERRITORYCORE_BLOB_DRIVER", "memory")
	t.Setenv("TERRITORYCORE_REDIS_ADDR", "localhost:6379")
	t.Setenv("TERRITORYCORE_REDIS_DB", "3")
	t.Setenv("TERRITORYCORE_SESSION_USER", "u9")
	t.Setenv("TERRITORYCORE_SESSION_ADMIN", "true")
	t.Setenv("TERRITORYCORE_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, core.StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, blob.DriverMemory, cfg.Blob.Driver)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "u9", cfg.Session.UserID)
	assert.True(t, cfg.Session.Admin)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvOverridesRejectMalformedValues(t *testing.T) {
	t.Setenv("TERRITORYCORE_SESSION_ADMIN", "sometimes")
	_, err := Load("")
	require.Error(t, err)

	t.Setenv("TERRITORYCORE_SESSION_ADMIN", "false")
	t.Setenv("TERRITORYCORE_REDIS_DB", "zero")
	_, err = Load("")
	require.Error(t, err)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [unterminated"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cfg.yaml")
	cfg := DefaultConfig()
	cfg.Redis.Addr = "cache:6379"
	cfg.Session.UserID = "u1"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"storage driver", func(c *Config) { c.Storage.Driver = "mongo" }},
		{"blob driver", func(c *Config) { c.Blob.Driver = "gcs" }},
		{"s3 without bucket", func(c *Config) { c.Blob.Driver = blob.DriverS3 }},
		{"bad duration", func(c *Config) { c.Engine.RecentWindow = "two weeks" }},
		{"negative duration", func(c *Config) { c.Redis.TTL = "-1m" }},
		{"negative redis db", func(c *Config) { c.Redis.DB = -1 }},
		{"negative queue", func(c *Config) { c.Export.QueueSize = -2 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
