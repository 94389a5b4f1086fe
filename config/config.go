// Package config manages filebeam relay configuration using koanf/v2.
//
// Settings are resolved in three layers: built-in defaults, an optional
// YAML file, and environment variable overrides. Environment keys use the
// bare names the service has always honored (MAX_SESSIONS, SESSION_TIMEOUT,
// PORT, ...) with no prefix.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the complete relay daemon configuration.
//
// SESSION_TIMEOUT is expressed in minutes and PING_INTERVAL in seconds to
// stay wire-compatible with existing deployments; use the SessionTimeout
// and PingInterval accessors for typed durations.
type Config struct {
	// ProjectName is the human-readable service name reported on "/".
	ProjectName string `koanf:"project_name"`

	// Port is the TCP port for the HTTP/WebSocket listener.
	Port int `koanf:"port"`

	// MetricsListen is the listen address for the Prometheus endpoint
	// (empty disables metrics).
	MetricsListen string `koanf:"metrics_listen"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `koanf:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// MaxSessions caps the number of live sessions in the registry.
	MaxSessions int `koanf:"max_sessions"`

	// MaxFileSize is the advisory transfer size cap surfaced to clients.
	MaxFileSize int64 `koanf:"max_file_size"`

	// SessionTimeoutMinutes is the idle age, in minutes, after which the
	// sweeper evicts a session.
	SessionTimeoutMinutes int `koanf:"session_timeout"`

	// PingIntervalSeconds is the server heartbeat cadence in seconds
	// (0 disables heartbeats).
	PingIntervalSeconds int `koanf:"ping_interval"`

	// ChunkSize is the advisory payload chunk size surfaced to clients.
	ChunkSize int `koanf:"chunk_size"`

	// MaxMessageLength is the per-chat-message character cap.
	MaxMessageLength int `koanf:"max_message_length"`

	// MaxConnectionsPerUser caps concurrent connections per user ID.
	MaxConnectionsPerUser int `koanf:"max_connections_per_user"`

	// AllowedOrigins is a comma-separated Origin allow-list for the
	// WebSocket upgrade ("*" allows any Origin).
	AllowedOrigins string `koanf:"allowed_origins"`

	// AllowNoOrigin accepts upgrade requests without an Origin header
	// (non-browser clients).
	AllowNoOrigin bool `koanf:"allow_no_origin"`
}

// DefaultConfig returns the defaults the service has shipped with: a 200
// session registry, 30 minute idle timeout, 5 connections per user and a
// 5 GiB advisory file cap.
func DefaultConfig() *Config {
	return &Config{
		ProjectName:           "File Transfer Pro",
		Port:                  8000,
		MetricsListen:         "",
		LogLevel:              "info",
		LogFormat:             "text",
		MaxSessions:           200,
		MaxFileSize:           5 << 30,
		SessionTimeoutMinutes: 30,
		PingIntervalSeconds:   30,
		ChunkSize:             128 << 10,
		MaxMessageLength:      5000,
		MaxConnectionsPerUser: 5,
		AllowedOrigins:        "*",
		AllowNoOrigin:         true,
	}
}

// SessionTimeout returns the idle eviction age as a duration.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMinutes) * time.Minute
}

// PingInterval returns the heartbeat cadence as a duration (0 = disabled).
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

// ListenAddr returns the main listener address derived from Port.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Origins splits the AllowedOrigins CSV into trimmed entries.
func (c *Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// recognizedEnvKeys lists the bare environment variables the daemon honors.
// Anything else in the process environment is ignored.
var recognizedEnvKeys = map[string]struct{}{
	"project_name":             {},
	"port":                     {},
	"metrics_listen":           {},
	"log_level":                {},
	"log_format":               {},
	"max_sessions":             {},
	"max_file_size":            {},
	"session_timeout":          {},
	"ping_interval":            {},
	"chunk_size":               {},
	"max_message_length":       {},
	"max_connections_per_user": {},
	"allowed_origins":          {},
	"allow_no_origin":          {},
}

// Load reads configuration from an optional YAML file at path, overlays
// environment variable overrides, and merges on top of DefaultConfig().
// Missing fields inherit defaults. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	// MAX_SESSIONS -> max_sessions; unrecognized variables map to "" and
	// are dropped by the provider.
	if err := k.Load(env.Provider("", ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// envKeyMapper lowercases a recognized environment variable name; unknown
// names map to the empty string, which the env provider skips.
func envKeyMapper(s string) string {
	key := strings.ToLower(s)
	if _, ok := recognizedEnvKeys[key]; !ok {
		return ""
	}
	return key
}

// loadDefaults installs the default config as the base koanf layer.
func loadDefaults(k *koanf.Koanf, d *Config) error {
	defaults := map[string]any{
		"project_name":             d.ProjectName,
		"port":                     d.Port,
		"metrics_listen":           d.MetricsListen,
		"log_level":                d.LogLevel,
		"log_format":               d.LogFormat,
		"max_sessions":             d.MaxSessions,
		"max_file_size":            d.MaxFileSize,
		"session_timeout":          d.SessionTimeoutMinutes,
		"ping_interval":            d.PingIntervalSeconds,
		"chunk_size":               d.ChunkSize,
		"max_message_length":       d.MaxMessageLength,
		"max_connections_per_user": d.MaxConnectionsPerUser,
		"allowed_origins":          d.AllowedOrigins,
		"allow_no_origin":          d.AllowNoOrigin,
	}
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}
	return nil
}

// Validate rejects configurations the relay cannot run with.
func Validate(c *Config) error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be positive, got %d", c.MaxSessions)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be positive, got %d", c.MaxFileSize)
	}
	if c.SessionTimeoutMinutes <= 0 {
		return fmt.Errorf("session_timeout must be positive, got %d", c.SessionTimeoutMinutes)
	}
	if c.PingIntervalSeconds < 0 {
		return fmt.Errorf("ping_interval must not be negative, got %d", c.PingIntervalSeconds)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("max_message_length must be positive, got %d", c.MaxMessageLength)
	}
	if c.MaxConnectionsPerUser <= 0 {
		return fmt.Errorf("max_connections_per_user must be positive, got %d", c.MaxConnectionsPerUser)
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("log_format %q is not text or json", c.LogFormat)
	}
	return nil
}

// ParseLogLevel maps a config level string to a slog.Level, falling back
// to info for unknown values.
func ParseLogLevel(level string) slog.Level {
	l, err := parseLogLevel(level)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level %q is not debug, info, warn or error", level)
	}
}
