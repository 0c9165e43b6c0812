// Package config loads litman settings from defaults, a TOML file, LITMAN_*
// environment variables and command-line flags, in rising precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rohanthewiz/serr"
	"github.com/spf13/viper"
)

// Node modes
const (
	ModeClient = "client"
	ModeServer = "server"
)

const (
	envPrefix               = "LITMAN"
	defaultMode             = ModeClient
	defaultDatabasePath     = "litman.duckdb"
	defaultStoragePath      = "files"
	defaultServerAddress    = "localhost:8000"
	defaultTokenTTL         = 24 * time.Hour
	defaultClientTimeout    = 30 * time.Second
	defaultFetchConcurrency = 4
	defaultLogLevel         = "info"
)

// Config is the runtime configuration of one node.
type Config struct {
	Mode            string
	DatabasePath    string
	FileStoragePath string
	Server          ServerConfig
	Client          ClientConfig
	LogLevel        string
	MetricsAddress  string // empty disables the metrics listener
}

// ServerConfig applies to nodes in server mode.
type ServerConfig struct {
	Address      string
	Username     string
	PasswordHash string // bcrypt; empty username and hash disable auth
	TokenSecret  string
	TokenTTL     time.Duration
}

// ClientConfig applies to nodes in client mode.
type ClientConfig struct {
	ServerURL        string
	Username         string
	Password         string
	Timeout          time.Duration
	FetchConcurrency int
}

// DefaultConfigFile is where the config file is looked for when none is
// given: $XDG_CONFIG_HOME/litman.toml or ~/.config/litman.toml.
func DefaultConfigFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "litman.toml"
	}
	return filepath.Join(dir, "litman.toml")
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	v := viper.New()
	ApplyDefaults(v)
	return v
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("toml")

	v.SetDefault("mode", defaultMode)
	v.SetDefault("database.path", defaultDatabasePath)
	v.SetDefault("files.storage_path", defaultStoragePath)
	v.SetDefault("server.address", defaultServerAddress)
	v.SetDefault("server.username", "")
	v.SetDefault("server.password_hash", "")
	v.SetDefault("server.token_secret", "")
	v.SetDefault("server.token_ttl", defaultTokenTTL)
	v.SetDefault("client.server_url", "")
	v.SetDefault("client.username", "")
	v.SetDefault("client.password", "")
	v.SetDefault("client.timeout", defaultClientTimeout)
	v.SetDefault("client.fetch_concurrency", defaultFetchConcurrency)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("metrics.address", "")
}

// Load parses runtime configuration from viper.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Mode:            strings.ToLower(strings.TrimSpace(v.GetString("mode"))),
		DatabasePath:    v.GetString("database.path"),
		FileStoragePath: v.GetString("files.storage_path"),
		Server: ServerConfig{
			Address:      v.GetString("server.address"),
			Username:     v.GetString("server.username"),
			PasswordHash: v.GetString("server.password_hash"),
			TokenSecret:  v.GetString("server.token_secret"),
			TokenTTL:     v.GetDuration("server.token_ttl"),
		},
		Client: ClientConfig{
			ServerURL:        v.GetString("client.server_url"),
			Username:         v.GetString("client.username"),
			Password:         v.GetString("client.password"),
			Timeout:          v.GetDuration("client.timeout"),
			FetchConcurrency: v.GetInt("client.fetch_concurrency"),
		},
		LogLevel:       v.GetString("log.level"),
		MetricsAddress: v.GetString("metrics.address"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate fails fast on settings that would only break mid-sync.
func (c Config) Validate() error {
	if c.Mode != ModeClient && c.Mode != ModeServer {
		return serr.New("mode must be \"client\" or \"server\", got \"" + c.Mode + "\"")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return serr.New("database.path is required")
	}
	if strings.TrimSpace(c.FileStoragePath) == "" {
		return serr.New("files.storage_path is required")
	}

	if c.Mode == ModeServer {
		if strings.TrimSpace(c.Server.Address) == "" {
			return serr.New("server.address is required in server mode")
		}
		if (c.Server.Username == "") != (c.Server.PasswordHash == "") {
			return serr.New("server.username and server.password_hash must be set together")
		}
		if c.Server.Username != "" && len(c.Server.TokenSecret) < 32 {
			return serr.New("server.token_secret must be at least 32 characters when auth is enabled")
		}
	}

	if c.Mode == ModeClient && c.Client.ServerURL != "" {
		if !strings.HasPrefix(c.Client.ServerURL, "http://") && !strings.HasPrefix(c.Client.ServerURL, "https://") {
			return serr.New("client.server_url must start with http:// or https://")
		}
		if c.Client.Username != "" && c.Client.Password == "" {
			return serr.New("client.password is required when client.username is set")
		}
	}
	if c.Client.FetchConcurrency < 1 {
		return serr.New("client.fetch_concurrency must be at least 1")
	}
	return nil
}

// AuthEnabled reports whether the server requires credentials.
func (c Config) AuthEnabled() bool {
	return c.Server.Username != "" && c.Server.PasswordHash != ""
}
