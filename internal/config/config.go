// Package config loads territorycore settings from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"territorycore/internal/access"
	"territorycore/internal/blob"
	"territorycore/internal/core"

	"gopkg.in/yaml.v3"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "TERRITORYCORE_"

// Config is the root configuration document.
type Config struct {
	Storage core.StorageConfig   `yaml:"storage"`
	Blob    blob.Config          `yaml:"blob"`
	Redis   RedisConfig          `yaml:"redis"`
	Logging LoggingConfig        `yaml:"logging"`
	Session access.StaticSession `yaml:"session"`
	Engine  EngineConfig         `yaml:"engine"`
	Export  ExportConfig         `yaml:"export"`
	Metrics MetricsConfig        `yaml:"metrics"`
}

// RedisConfig configures the snapshot cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	TTL      string `yaml:"ttl"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EngineConfig tunes the aggregation engine. Durations use time.ParseDuration
// syntax; an empty RefreshInterval disables periodic passes.
type EngineConfig struct {
	RecentWindow    string `yaml:"recent_window"`
	RefreshInterval string `yaml:"refresh_interval"`
	ImageURLExpiry  string `yaml:"image_url_expiry"`
}

// ExportConfig places export artifacts in the blob store.
type ExportConfig struct {
	Prefix    string `yaml:"prefix"`
	QueueSize int    `yaml:"queue_size"`
}

// MetricsConfig sets the Prometheus listen address. Empty disables serving.
type MetricsConfig struct {
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Storage: core.DefaultStorageConfig(),
		Blob:    blob.Config{Driver: blob.DriverFilesystem, FSRoot: "./blobdata"},
		Redis:   RedisConfig{Prefix: "territorycore", TTL: "10m"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Engine:  EngineConfig{RecentWindow: "336h", ImageURLExpiry: "15m"},
		Export:  ExportConfig{Prefix: "exports", QueueSize: 8},
		Metrics: MetricsConfig{Namespace: "territorycore"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"STORAGE_DRIVER":            (*string)(&c.Storage.Driver),
		"SQLITE_PATH":               &c.Storage.SQLitePath,
		"POSTGRES_DSN":              &c.Storage.PostgresDSN,
		"BLOB_DRIVER":               (*string)(&c.Blob.Driver),
		"BLOB_FS_ROOT":              &c.Blob.FSRoot,
		"BLOB_FS_BASE_URL":          &c.Blob.FSBaseURL,
		"BLOB_S3_BUCKET":            &c.Blob.S3.Bucket,
		"BLOB_S3_REGION":            &c.Blob.S3.Region,
		"BLOB_S3_ENDPOINT":          &c.Blob.S3.Endpoint,
		"BLOB_S3_ACCESS_KEY_ID":     &c.Blob.S3.AccessKeyID,
		"BLOB_S3_SECRET_ACCESS_KEY": &c.Blob.S3.SecretAccessKey,
		"BLOB_S3_PREFIX":            &c.Blob.S3.Prefix,
		"REDIS_ADDR":                &c.Redis.Addr,
		"REDIS_PASSWORD":            &c.Redis.Password,
		"LOG_LEVEL":                 &c.Logging.Level,
		"LOG_FORMAT":                &c.Logging.Format,
		"SESSION_USER":              &c.Session.UserID,
		"SESSION_NAME":              &c.Session.DisplayName,
		"ENGINE_RECENT_WINDOW":      &c.Engine.RecentWindow,
		"ENGINE_REFRESH_INTERVAL":   &c.Engine.RefreshInterval,
		"METRICS_ADDR":              &c.Metrics.Addr,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	bools := map[string]*bool{
		"BLOB_S3_PATH_STYLE": &c.Blob.S3.PathStyle,
		"SESSION_ADMIN":      &c.Session.Admin,
	}
	for name, dst := range bools {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = b
		}
	}
	if v, ok := os.LookupEnv(EnvPrefix + "REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sREDIS_DB: %w", EnvPrefix, err)
		}
		c.Redis.DB = db
	}
	return nil
}

// RecentWindow returns the recent-activity window, two weeks when unset.
func (c *Config) RecentWindow() time.Duration {
	return parseDuration(c.Engine.RecentWindow, 14*24*time.Hour)
}

// RefreshInterval returns the periodic pass interval; zero disables it.
func (c *Config) RefreshInterval() time.Duration {
	return parseDuration(c.Engine.RefreshInterval, 0)
}

// ImageURLExpiry returns the lifetime of image URLs.
func (c *Config) ImageURLExpiry() time.Duration {
	return parseDuration(c.Engine.ImageURLExpiry, blob.DefaultURLExpiry)
}

// CacheTTL returns the lifetime of cached snapshots.
func (c *Config) CacheTTL() time.Duration {
	return parseDuration(c.Redis.TTL, 10*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Validate reports unsupported drivers and malformed values.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "", core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		return fmt.Errorf("invalid storage driver: %s", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case "", blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("blob driver s3 requires a bucket")
		}
	default:
		return fmt.Errorf("invalid blob driver: %s", c.Blob.Driver)
	}
	durations := map[string]string{
		"engine.recent_window":    c.Engine.RecentWindow,
		"engine.refresh_interval": c.Engine.RefreshInterval,
		"engine.image_url_expiry": c.Engine.ImageURLExpiry,
		"redis.ttl":               c.Redis.TTL,
	}
	for field, v := range durations {
		if strings.TrimSpace(v) == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", field, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid %s: negative duration", field)
		}
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db: %d", c.Redis.DB)
	}
	if c.Export.QueueSize < 0 {
		return fmt.Errorf("invalid export.queue_size: %d", c.Export.QueueSize)
	}
	return nil
}
