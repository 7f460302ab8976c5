package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"famhub/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Remote     RemoteConfig     `yaml:"remote"`
	Network    NetworkConfig    `yaml:"network"`
	Sync       SyncConfig       `yaml:"sync"`
	Indicator  IndicatorConfig  `yaml:"indicator"`
	API        APIConfig        `yaml:"api"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// StorageConfig selects the key/value backend behind the offline queue.
// Driver is one of sqlite, redis, memory. With redis and a database path set,
// sqlite serves as the failover target.
type StorageConfig struct {
	Driver       string `yaml:"driver"`
	QueueKey     string `yaml:"queue_key"`
	KeyPrefix    string `yaml:"key_prefix"`
	MaxQueueSize int    `yaml:"max_queue_size"`
}

// RemoteConfig describes the remote creation API. Driver is http or postgres.
type RemoteConfig struct {
	Driver      string        `yaml:"driver"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	AccessToken string        `yaml:"access_token"`
	DSN         string        `yaml:"dsn"`
	Timeout     time.Duration `yaml:"timeout"`
	RateLimit   float64       `yaml:"rate_limit"`
	Burst       int           `yaml:"burst"`
}

type NetworkConfig struct {
	AssumeOnline     *bool         `yaml:"assume_online"`
	ProbeURL         string        `yaml:"probe_url"`
	ProbeInterval    time.Duration `yaml:"probe_interval"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
	OfflineBackoff   float64       `yaml:"offline_backoff"`
	MaxProbeInterval time.Duration `yaml:"max_probe_interval"`
}

type SyncConfig struct {
	ActionTimeout   time.Duration `yaml:"action_timeout"`
	SyncOnReconnect *bool         `yaml:"sync_on_reconnect"`
}

type IndicatorConfig struct {
	DisplayTimeout time.Duration `yaml:"display_timeout"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	// AllowedOrigins lists the origins that may open the status stream.
	// Empty means same-origin only; "*" allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// Load reads an optional .env file, expands environment variables inside the
// YAML document, applies defaults and validates the result.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database path is required for sqlite storage")
		}
	case "redis":
		if c.Redis.Address == "" {
			return errors.New("redis address is required for redis storage")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}

	switch c.Remote.Driver {
	case "http":
		if c.Remote.BaseURL == "" {
			return errors.New("remote base_url is required for http driver")
		}
	case "postgres":
		if c.Remote.DSN == "" {
			return errors.New("remote dsn is required for postgres driver")
		}
	default:
		return fmt.Errorf("unknown remote driver: %q", c.Remote.Driver)
	}

	if c.Storage.MaxQueueSize < 0 {
		return errors.New("storage max_queue_size must not be negative")
	}
	if c.Sync.ActionTimeout <= 0 || c.Remote.Timeout <= 0 {
		return errors.New("timeouts must be positive")
	}

	return ValidateAPIKeys(c.API.Auth.APIKeys)
}

// ValidateAPIKeys rejects empty and duplicate keys.
func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if strings.TrimSpace(k.Key) == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client '%s'", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

// SyncOnReconnect reports whether a drain pass starts on offline->online.
func (c *Config) SyncOnReconnect() bool {
	return c.Sync.SyncOnReconnect == nil || *c.Sync.SyncOnReconnect
}

// AssumeOnline is the initial connectivity state before any signal arrives.
func (c *Config) AssumeOnline() bool {
	return c.Network.AssumeOnline == nil || *c.Network.AssumeOnline
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "famhub"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.QueueKey == "" {
		c.Storage.QueueKey = models.DefaultQueueKey
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "famhub:"
	}
	if c.Remote.Driver == "" {
		c.Remote.Driver = "http"
	}
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = models.DefaultRemoteTimeout * time.Second
	}
	if c.Remote.RateLimit == 0 {
		c.Remote.RateLimit = models.RateLimitRPS
	}
	if c.Remote.Burst == 0 {
		c.Remote.Burst = models.RateLimitBurst
	}
	if c.Network.ProbeInterval == 0 {
		c.Network.ProbeInterval = models.DefaultProbeInterval * time.Second
	}
	if c.Network.ProbeTimeout == 0 {
		c.Network.ProbeTimeout = 5 * time.Second
	}
	if c.Network.OfflineBackoff == 0 {
		c.Network.OfflineBackoff = 2
	}
	if c.Network.MaxProbeInterval == 0 {
		c.Network.MaxProbeInterval = 2 * time.Minute
	}
	if c.Sync.ActionTimeout == 0 {
		c.Sync.ActionTimeout = models.DefaultActionTimeout * time.Second
	}
	if c.Indicator.DisplayTimeout == 0 {
		c.Indicator.DisplayTimeout = models.DefaultDisplayTimeout * time.Second
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
}
