// Package config resolves the transport's runtime settings from the
// environment. CLI flags override individual fields after Load.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the settings for the courier server and client.
type Config struct {
	// Addr is the host:port the server listens on. The WebSocket upgrade
	// and the REST fallback share this address.
	Addr string `env:"COURIER_ADDR" envDefault:":8990"`

	// WSPath is the well-known upgrade path.
	WSPath string `env:"COURIER_WS_PATH" envDefault:"/ws"`

	// DataDir holds the SQLite database and the JSONL audit log.
	DataDir string `env:"COURIER_DATA_DIR" envDefault:"./courier-data"`

	// ReconnectDelay is the client's fixed delay between a disconnect and
	// the single scheduled reconnect attempt.
	ReconnectDelay time.Duration `env:"COURIER_RECONNECT_DELAY" envDefault:"5s"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.WSPath == "" || c.WSPath[0] != '/' {
		return fmt.Errorf("ws path must start with /: %q", c.WSPath)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive: %s", c.ReconnectDelay)
	}
	return nil
}
