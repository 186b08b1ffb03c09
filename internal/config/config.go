// ABOUTME: Configuration loading and parsing for the chat-rs gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database"`
	Session   SessionConfig   `yaml:"session"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the bind addresses for both surfaces.
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	WSAddr   string `yaml:"ws_addr"`
}

// TailscaleConfig holds optional tsnet listener configuration.
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// DatabaseConfig holds database and pool configuration.
type DatabaseConfig struct {
	Path            string `yaml:"path"`
	MaxConns        int    `yaml:"max_conns"`
	MaxMessageBytes int    `yaml:"max_message_bytes"`

	PoolTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	PoolTimeoutRaw string `yaml:"pool_timeout"`
}

// SessionConfig holds per-connection limits for the streaming surface.
type SessionConfig struct {
	SendBuffer    int   `yaml:"send_buffer"`
	MaxFrameBytes int64 `yaml:"max_frame_bytes"`

	DeliverTimeout   time.Duration `yaml:"-"`
	HandshakeTimeout time.Duration `yaml:"-"`
	WriteTimeout     time.Duration `yaml:"-"`
	PongTimeout      time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	DeliverTimeoutRaw   string `yaml:"deliver_timeout"`
	HandshakeTimeoutRaw string `yaml:"handshake_timeout"`
	WriteTimeoutRaw     string `yaml:"write_timeout"`
	PongTimeoutRaw      string `yaml:"pong_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Bind addresses are required unless Tailscale provides the listeners
	if !c.Tailscale.Enabled {
		if c.Server.GRPCAddr == "" {
			return fmt.Errorf("server.grpc_addr is required (or enable tailscale)")
		}
		if c.Server.WSAddr == "" {
			return fmt.Errorf("server.ws_addr is required (or enable tailscale)")
		}
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{cfg.Database.PoolTimeoutRaw, &cfg.Database.PoolTimeout, "database.pool_timeout"},
		{cfg.Session.DeliverTimeoutRaw, &cfg.Session.DeliverTimeout, "session.deliver_timeout"},
		{cfg.Session.HandshakeTimeoutRaw, &cfg.Session.HandshakeTimeout, "session.handshake_timeout"},
		{cfg.Session.WriteTimeoutRaw, &cfg.Session.WriteTimeout, "session.write_timeout"},
		{cfg.Session.PongTimeoutRaw, &cfg.Session.PongTimeout, "session.pong_timeout"},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
