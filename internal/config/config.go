package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	SenderSimulated = "simulated"
	SenderHTTP      = "http"

	NetworkManual = "manual"
	NetworkProbe  = "probe"
)

type Config struct {
	Store   StoreConfig   `yaml:"store"`
	HTTP    HTTPConfig    `yaml:"http"`
	Sender  SenderConfig  `yaml:"sender"`
	Network NetworkConfig `yaml:"network"`
	Sync    SyncConfig    `yaml:"sync"`
	Log     LogConfig     `yaml:"log"`
}

type StoreConfig struct {
	// sqlite | postgres | file
	Driver string `yaml:"driver"`

	// Path is the database or JSON file for sqlite and file.
	Path string `yaml:"path"`

	// DSN is the connection string for postgres.
	DSN string `yaml:"dsn"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type SenderConfig struct {
	Mode    string        `yaml:"mode"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`

	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	BreakerEnabled          bool          `yaml:"breaker_enabled"`
	BreakerFailureThreshold int           `yaml:"breaker_failure_threshold"`
	BreakerRecoveryTime     time.Duration `yaml:"breaker_recovery_time"`

	// SimulatedFailEvery makes every n-th simulated send fail.
	SimulatedFailEvery int `yaml:"simulated_fail_every"`
}

type NetworkConfig struct {
	Mode          string        `yaml:"mode"`
	ProbeURL      string        `yaml:"probe_url"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`

	// Online is the starting state of the manual monitor.
	Online bool `yaml:"online"`
}

type SyncConfig struct {
	MaxRetry       int           `yaml:"max_retry"`
	ResyncInterval time.Duration `yaml:"resync_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "offlinesync.db",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Sender: SenderConfig{
			Mode:                    SenderSimulated,
			Timeout:                 10 * time.Second,
			RateBurst:               1,
			BreakerEnabled:          true,
			BreakerFailureThreshold: 5,
			BreakerRecoveryTime:     30 * time.Second,
		},
		Network: NetworkConfig{
			Mode:          NetworkManual,
			ProbeInterval: 5 * time.Second,
			ProbeTimeout:  2 * time.Second,
			Online:        true,
		},
		Sync: SyncConfig{
			MaxRetry:       5,
			ResyncInterval: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers defaults, the YAML file at path (skipped when path is
// empty), a .env file in the working directory and OFFLINESYNC_*
// environment variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case "sqlite", "file":
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for driver %q", c.Store.Driver))
		}
		if c.Store.Path == ":memory:" {
			errs = append(errs, errors.New("store.path must be a file, not :memory:"))
		}
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for driver \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q: must be sqlite, postgres or file", c.Store.Driver))
	}

	switch c.Sender.Mode {
	case SenderSimulated:
	case SenderHTTP:
		if c.Sender.URL == "" {
			errs = append(errs, errors.New("sender.url is required for http mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("sender.mode %q: must be simulated or http", c.Sender.Mode))
	}
	if c.Sender.RateLimit < 0 {
		errs = append(errs, errors.New("sender.rate_limit must be >= 0"))
	}

	switch c.Network.Mode {
	case NetworkManual:
	case NetworkProbe:
		if c.Network.ProbeURL == "" {
			errs = append(errs, errors.New("network.probe_url is required for probe mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("network.mode %q: must be manual or probe", c.Network.Mode))
	}

	if c.Sync.MaxRetry < 1 {
		errs = append(errs, errors.New("sync.max_retry must be >= 1"))
	}
	if c.Sync.ResyncInterval < 0 {
		errs = append(errs, errors.New("sync.resync_interval must be >= 0"))
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("log.format %q: must be json or console", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
