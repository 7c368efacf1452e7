// Package config provides configuration management for the console.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	API    APIConfig    `mapstructure:"api"`
	Stream StreamConfig `mapstructure:"stream"`
	UI     UIConfig     `mapstructure:"ui"`
	Log    LogConfig    `mapstructure:"log"`
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
}

// APIConfig holds backend REST/WebSocket settings.
type APIConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	WSURL        string        `mapstructure:"ws_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ForwardedFor string        `mapstructure:"forwarded_for"`
}

// StreamConfig selects how account snapshots are delivered.
type StreamConfig struct {
	Mode           string        `mapstructure:"mode"` // "push", "pull"
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	Reconnect      bool          `mapstructure:"reconnect"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
	TimeFormat   string `mapstructure:"time_format"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// ServerConfig holds the local gateway settings.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StoreConfig holds local persistence settings.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// Stream modes.
const (
	StreamPush = "push"
	StreamPull = "pull"
)

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/algodesk"
	}
	return filepath.Join(home, ".config", "algodesk")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, fmt.Errorf("writing config template: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Dir = configDir

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("api.base_url", "http://localhost:8000/api/")
	v.SetDefault("api.ws_url", "")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.forwarded_for", "")

	v.SetDefault("stream.mode", StreamPush)
	v.SetDefault("stream.poll_interval", 5*time.Second)
	v.SetDefault("stream.reconnect", false)
	v.SetDefault("stream.reconnect_delay", 5*time.Second)

	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.date_format", "02-Jan-2006")
	v.SetDefault("ui.time_format", "15:04:05")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", false)
	v.SetDefault("log.file", true)
	v.SetDefault("log.file_path", filepath.Join(configDir, "logs", "algodesk.log"))
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age", 30)

	v.SetDefault("server.addr", "127.0.0.1:8787")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("store.path", filepath.Join(configDir, "algodesk.db"))
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALGODESK_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("ALGODESK_WS_URL"); v != "" {
		cfg.API.WSURL = v
	}
	if v := os.Getenv("ALGODESK_FORWARDED_FOR"); v != "" {
		cfg.API.ForwardedFor = v
	}
	if v := os.Getenv("ALGODESK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ALGODESK_STREAM_MODE"); v != "" {
		cfg.Stream.Mode = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an http(s) URL: %q", c.API.BaseURL)
	}
	if c.API.WSURL != "" {
		w, err := url.Parse(c.API.WSURL)
		if err != nil || (w.Scheme != "ws" && w.Scheme != "wss") {
			return fmt.Errorf("api.ws_url must be a ws(s) URL: %q", c.API.WSURL)
		}
	}
	if c.Stream.Mode != StreamPush && c.Stream.Mode != StreamPull {
		return fmt.Errorf("invalid stream mode: %s (must be 'push' or 'pull')", c.Stream.Mode)
	}
	if c.Stream.PollInterval <= 0 {
		return fmt.Errorf("stream.poll_interval must be positive")
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must be non-negative")
	}
	return nil
}

// WebSocketURL returns the configured ws_url or derives it from base_url
// (http -> ws, https -> wss, host root).
func (c *Config) WebSocketURL() string {
	if c.API.WSURL != "" {
		return strings.TrimRight(c.API.WSURL, "/")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return ""
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return scheme + "://" + u.Host
}

// IsPullMode returns true if snapshots are polled instead of pushed.
func (c *Config) IsPullMode() bool {
	return c.Stream.Mode == StreamPull
}
