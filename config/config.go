// Package config defines the FloorLink application configuration: plain
// struct trees loaded from a YAML file, overridden from the environment,
// and validated before use.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/floorlink/floorlink/errors"
)

// Config is the complete application configuration
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Gateway GatewayConfig `yaml:"gateway"`
	API     APIConfig     `yaml:"api"`
	Hub     HubConfig     `yaml:"hub"`
	Auth    AuthConfig    `yaml:"auth"`
	NATS    NATSConfig    `yaml:"nats"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig controls the process logger
type LogConfig struct {
	Level  string `yaml:"level"  validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// GatewayConfig controls the WebSocket listener
type GatewayConfig struct {
	Addr         string   `yaml:"addr"           validate:"required"`
	Path         string   `yaml:"path"           validate:"required,startswith=/"`
	WriteTimeout Duration `yaml:"write_timeout"  validate:"gt=0"`
	ReadTimeout  Duration `yaml:"read_timeout"   validate:"gt=0"`
	PingInterval Duration `yaml:"ping_interval"  validate:"gt=0"`
	MaxFrameSize int64    `yaml:"max_frame_size" validate:"gt=0"`
	// CommandRate / CommandBurst bound inbound commands per connection
	CommandRate  float64 `yaml:"command_rate"  validate:"gt=0"`
	CommandBurst int     `yaml:"command_burst" validate:"gt=0"`
}

// APIConfig controls the observability HTTP API
type APIConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// HubConfig controls connection supervision and queueing
type HubConfig struct {
	QueueCapacity        int      `yaml:"queue_capacity"         validate:"gt=0"`
	ErrorThreshold       int      `yaml:"error_threshold"        validate:"gt=0"`
	StaleAfter           Duration `yaml:"stale_after"            validate:"gt=0"`
	ScanInterval         Duration `yaml:"scan_interval"          validate:"gt=0"`
	WarningUnhealthyPct  float64  `yaml:"warning_unhealthy_pct"  validate:"gte=0,lte=1"`
	CriticalUnhealthyPct float64  `yaml:"critical_unhealthy_pct" validate:"gte=0,lte=1"`
}

// AuthConfig selects and configures the token verifier
type AuthConfig struct {
	// Mode is "http" (call the auth service) or "static" (fixed token
	// table, intended for development and tests)
	Mode     string            `yaml:"mode"     validate:"oneof=http static"`
	Endpoint string            `yaml:"endpoint" validate:"required_if=Mode http,omitempty,url"`
	Timeout  Duration          `yaml:"timeout"  validate:"gt=0"`
	Tokens   map[string]string `yaml:"tokens,omitempty"` // token -> user id, static mode
}

// NATSConfig controls the domain-event ingest bridge
type NATSConfig struct {
	Enabled       bool     `yaml:"enabled"`
	URLs          []string `yaml:"urls"           validate:"required_if=Enabled true,omitempty,dive,uri"`
	Name          string   `yaml:"name"`
	SubjectPrefix string   `yaml:"subject_prefix"`
	MaxReconnects int      `yaml:"max_reconnects"`
	ReconnectWait Duration `yaml:"reconnect_wait"`
}

// MetricsConfig toggles Prometheus metrics
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Gateway: GatewayConfig{
			Addr:         ":8080",
			Path:         "/ws",
			WriteTimeout: Duration(10 * time.Second),
			ReadTimeout:  Duration(60 * time.Second),
			PingInterval: Duration(30 * time.Second),
			MaxFrameSize: 64 * 1024,
			CommandRate:  20,
			CommandBurst: 40,
		},
		API: APIConfig{
			Addr: ":8081",
		},
		Hub: HubConfig{
			QueueCapacity:        256,
			ErrorThreshold:       3,
			StaleAfter:           Duration(2 * time.Minute),
			ScanInterval:         Duration(15 * time.Second),
			WarningUnhealthyPct:  0.1,
			CriticalUnhealthyPct: 0.5,
		},
		Auth: AuthConfig{
			Mode:    "static",
			Timeout: Duration(5 * time.Second),
		},
		NATS: NATSConfig{
			Enabled:       false,
			Name:          "floorlink",
			SubjectPrefix: "floor",
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load reads the configuration file at path (if non-empty), applies
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapInternal(err, "config", "Load", "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInternal(err, "config", "Load", "parse config file")
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies FLOORLINK_* environment variables over the
// loaded configuration. Only operationally useful knobs are exposed.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FLOORLINK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FLOORLINK_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("FLOORLINK_GATEWAY_ADDR"); v != "" {
		c.Gateway.Addr = v
	}
	if v := os.Getenv("FLOORLINK_API_ADDR"); v != "" {
		c.API.Addr = v
	}
	if v := os.Getenv("FLOORLINK_AUTH_ENDPOINT"); v != "" {
		c.Auth.Endpoint = v
		c.Auth.Mode = "http"
	}
	if v := os.Getenv("FLOORLINK_NATS_URL"); v != "" {
		c.NATS.Enabled = true
		c.NATS.URLs = []string{v}
	}
	if v := os.Getenv("FLOORLINK_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Hub.QueueCapacity = n
		}
	}
}

// Validate checks the configuration against its struct tags plus the
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.WrapInternal(err, "config", "Validate", "struct validation")
	}

	if c.Auth.Mode == "static" && len(c.Auth.Tokens) == 0 {
		return errors.WrapInternal(
			fmt.Errorf("auth mode %q requires at least one token", c.Auth.Mode),
			"config", "Validate", "static auth token table")
	}
	if c.Hub.CriticalUnhealthyPct < c.Hub.WarningUnhealthyPct {
		return errors.WrapInternal(
			fmt.Errorf("critical_unhealthy_pct %.2f below warning_unhealthy_pct %.2f",
				c.Hub.CriticalUnhealthyPct, c.Hub.WarningUnhealthyPct),
			"config", "Validate", "health thresholds")
	}
	return nil
}
