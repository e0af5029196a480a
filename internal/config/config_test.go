package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Addr != ":8990" {
		t.Errorf("expected default addr :8990, got %q", cfg.Addr)
	}
	if cfg.WSPath != "/ws" {
		t.Errorf("expected default ws path /ws, got %q", cfg.WSPath)
	}
	if cfg.ReconnectDelay != 5*time.Second {
		t.Errorf("expected default reconnect delay 5s, got %s", cfg.ReconnectDelay)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("COURIER_ADDR", "127.0.0.1:7001")
	t.Setenv("COURIER_WS_PATH", "/chat")
	t.Setenv("COURIER_RECONNECT_DELAY", "250ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Addr != "127.0.0.1:7001" {
		t.Errorf("addr not read from env: %q", cfg.Addr)
	}
	if cfg.WSPath != "/chat" {
		t.Errorf("ws path not read from env: %q", cfg.WSPath)
	}
	if cfg.ReconnectDelay != 250*time.Millisecond {
		t.Errorf("reconnect delay not read from env: %s", cfg.ReconnectDelay)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty addr", func(c *Config) { c.Addr = "" }, true},
		{"path without slash", func(c *Config) { c.WSPath = "ws" }, true},
		{"zero delay", func(c *Config) { c.ReconnectDelay = 0 }, true},
		{"negative delay", func(c *Config) { c.ReconnectDelay = -time.Second }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				Addr:           ":8990",
				WSPath:         "/ws",
				DataDir:        t.TempDir(),
				ReconnectDelay: 5 * time.Second,
			}
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
