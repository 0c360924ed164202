package config

import (
	"fmt"
	"os"
	"strings"

	yaml "github.com/goccy/go-yaml"

	"autodrop/internal/kafka"
	"autodrop/internal/postgres"
	"autodrop/internal/rediskeys"
	"autodrop/internal/retry"
	"autodrop/internal/scheduler"
)

const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	TransportLog   = "log"
	TransportKafka = "kafka"
)

type Config struct {
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
	State     StateConfig     `yaml:"state"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  postgres.Config `yaml:"postgres"`
	Kafka     kafka.Config    `yaml:"kafka"`
	Transport TransportConfig `yaml:"transport"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Timer     TimerConfig     `yaml:"timer"`
	Roles     RolesConfig     `yaml:"roles"`
	Retry     retry.Config    `yaml:"retry"`
}

type APIConfig struct {
	Addr      string          `yaml:"addr"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig is per identity. A zero RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StateConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type TransportConfig struct {
	Kind string `yaml:"kind"`
}

type IngestConfig struct {
	Enabled bool `yaml:"enabled"`
}

type TimerConfig struct {
	DefaultIntervalSeconds int `yaml:"default_interval_seconds"`
}

// RolesConfig seeds identities at startup on top of the persisted registry.
type RolesConfig struct {
	Producers []int64 `yaml:"producers"`
	Consumers []int64 `yaml:"consumers"`
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.API.Addr) == "" {
		c.API.Addr = ":8080"
	}
	if c.API.RateLimit.RPS > 0 && c.API.RateLimit.Burst <= 0 {
		c.API.RateLimit.Burst = 5
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "info"
	}
	if strings.TrimSpace(c.Log.Format) == "" {
		c.Log.Format = "text"
	}
	if strings.TrimSpace(c.State.Backend) == "" {
		c.State.Backend = BackendFile
	}
	if c.State.Backend == BackendFile && strings.TrimSpace(c.State.Path) == "" {
		c.State.Path = "autodrop_state.json"
	}
	if strings.TrimSpace(c.Redis.Prefix) == "" {
		c.Redis.Prefix = rediskeys.DefaultPrefix
	}
	if strings.TrimSpace(c.Postgres.SnapshotName) == "" {
		c.Postgres.SnapshotName = "default"
	}
	if strings.TrimSpace(c.Kafka.GroupID) == "" {
		c.Kafka.GroupID = "autodrop-ingest"
	}
	if strings.TrimSpace(c.Transport.Kind) == "" {
		c.Transport.Kind = TransportLog
	}
	if c.Timer.DefaultIntervalSeconds <= 0 {
		c.Timer.DefaultIntervalSeconds = scheduler.DefaultIntervalSeconds
	}
	if c.Retry == (retry.Config{}) {
		c.Retry = retry.DefaultConfig()
	}
}

// ValidateState checks the persistence backend section only.
func (c Config) ValidateState() error {
	switch c.State.Backend {
	case BackendFile:
		if strings.TrimSpace(c.State.Path) == "" {
			return fmt.Errorf("state.path is required")
		}
	case BackendRedis:
		if err := validateRedis(c.Redis); err != nil {
			return err
		}
	case BackendPostgres:
		if err := c.Postgres.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("state.backend %q is not one of file, redis, postgres", c.State.Backend)
	}
	return nil
}

func (c Config) ValidateForServe() error {
	if strings.TrimSpace(c.API.Addr) == "" {
		return fmt.Errorf("api.addr is required")
	}
	if c.API.RateLimit.RPS < 0 {
		return fmt.Errorf("api.rate_limit.rps must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", c.Log.Format)
	}
	if err := c.ValidateState(); err != nil {
		return err
	}
	switch c.Transport.Kind {
	case TransportLog:
	case TransportKafka:
		if err := c.Kafka.ValidateDeliveries(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("transport.kind %q is not one of log, kafka", c.Transport.Kind)
	}
	if c.Ingest.Enabled {
		if err := c.Kafka.ValidateIngest(); err != nil {
			return err
		}
	}
	if err := scheduler.ValidateInterval(c.Timer.DefaultIntervalSeconds); err != nil {
		return fmt.Errorf("timer.default_interval_seconds: %w", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	return nil
}

func validateRedis(cfg RedisConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("redis.addr is required")
	}
	return nil
}
