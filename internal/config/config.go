package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ErrMissingSecret is returned when no shared HMAC secret is configured
var ErrMissingSecret = errors.New("LOBBY_SECRET is required")

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Presence PresenceConfig `yaml:"presence"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr   string `yaml:"listen_addr" env:"LOBBY_LISTEN_ADDR"`
	HTTPPort     int    `yaml:"http_port" env:"LOBBY_PORT"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" env:"LOBBY_MAX_BODY_BYTES"`
	ServiceName  string `yaml:"service_name" env:"LOBBY_SERVICE_NAME"`
}

// AuthConfig holds request signing settings
type AuthConfig struct {
	Secret  string        `yaml:"secret" env:"LOBBY_SECRET"`
	MaxSkew time.Duration `yaml:"max_skew" env:"LOBBY_CLOCK_SKEW"`
}

// PresenceConfig holds registry eviction timing
type PresenceConfig struct {
	StaleAfter    time.Duration `yaml:"stale_after" env:"LOBBY_STALE_AFTER"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"LOBBY_SWEEP_INTERVAL"`
}

// DatabaseConfig holds SQLite match history settings.
// An empty path disables history.
type DatabaseConfig struct {
	Path string `yaml:"path" env:"LOBBY_DATABASE_PATH"`
}

// NATSConfig holds event bus settings. An empty URL disables publishing.
type NATSConfig struct {
	URL     string `yaml:"url" env:"LOBBY_NATS_URL"`
	Subject string `yaml:"subject" env:"LOBBY_NATS_SUBJECT"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level" env:"LOBBY_LOG_LEVEL"`
	Format string `yaml:"format" env:"LOBBY_LOG_FORMAT"`
}

// Load reads configuration from an optional YAML file, then applies
// environment overrides and defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "0.0.0.0"
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 3000
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 4096
	}
	if c.Server.ServiceName == "" {
		c.Server.ServiceName = "3sx-lobby"
	}
	if c.Auth.MaxSkew == 0 {
		c.Auth.MaxSkew = 60 * time.Second
	}
	if c.Presence.StaleAfter == 0 {
		c.Presence.StaleAfter = 10 * time.Second
	}
	if c.Presence.SweepInterval == 0 {
		c.Presence.SweepInterval = 5 * time.Second
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "lobby.events"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks settings the server cannot start without
func (c *Config) Validate() error {
	if c.Auth.Secret == "" {
		return ErrMissingSecret
	}
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port %d", c.Server.HTTPPort)
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("invalid max body size %d", c.Server.MaxBodyBytes)
	}
	return nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.ListenAddr, c.Server.HTTPPort)
}
