package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"litman/config"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.Load(config.NewViper())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Mode != config.ModeClient {
		t.Errorf("expected client mode by default, got %q", cfg.Mode)
	}
	if cfg.Client.Timeout != 30*time.Second || cfg.Client.FetchConcurrency != 4 {
		t.Errorf("unexpected client defaults %+v", cfg.Client)
	}
	if cfg.AuthEnabled() {
		t.Error("auth should be off by default")
	}
}

func TestConfigFileAndEnvLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "litman.toml")
	contents := `
mode = "server"

[database]
path = "/var/lib/litman/library.duckdb"

[server]
address = "0.0.0.0:9000"
token_ttl = "2h"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("LITMAN_SERVER_ADDRESS", "127.0.0.1:9100")

	v := config.NewViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig failed: %v", err)
	}

	cfg, err := config.Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Mode != config.ModeServer {
		t.Errorf("expected server mode from file, got %q", cfg.Mode)
	}
	if cfg.DatabasePath != "/var/lib/litman/library.duckdb" {
		t.Errorf("unexpected database path %q", cfg.DatabasePath)
	}
	if cfg.Server.Address != "127.0.0.1:9100" {
		t.Errorf("environment should override the file, got %q", cfg.Server.Address)
	}
	if cfg.Server.TokenTTL != 2*time.Hour {
		t.Errorf("expected 2h token ttl, got %v", cfg.Server.TokenTTL)
	}
}

func TestValidate(t *testing.T) {
	base := func() config.Config {
		cfg, err := config.Load(config.NewViper())
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{"valid client", func(c *config.Config) { c.Client.ServerURL = "http://hub:8000" }, ""},
		{"bad mode", func(c *config.Config) { c.Mode = "peer" }, "mode must be"},
		{"no database", func(c *config.Config) { c.DatabasePath = " " }, "database.path"},
		{"bad url", func(c *config.Config) { c.Client.ServerURL = "hub:8000" }, "client.server_url"},
		{"user without password", func(c *config.Config) {
			c.Client.ServerURL = "http://hub:8000"
			c.Client.Username = "me"
		}, "client.password"},
		{"server hash without user", func(c *config.Config) {
			c.Mode = config.ModeServer
			c.Server.PasswordHash = "$2a$12$abc"
		}, "must be set together"},
		{"server short secret", func(c *config.Config) {
			c.Mode = config.ModeServer
			c.Server.Username = "me"
			c.Server.PasswordHash = "$2a$12$abc"
			c.Server.TokenSecret = "short"
		}, "token_secret"},
		{"server with auth", func(c *config.Config) {
			c.Mode = config.ModeServer
			c.Server.Username = "me"
			c.Server.PasswordHash = "$2a$12$abc"
			c.Server.TokenSecret = strings.Repeat("s", 32)
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
