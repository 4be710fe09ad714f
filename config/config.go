package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingToken = errors.New("TOKEN must be set")
	ErrInvalidPort  = errors.New("PORT must be a number between 1 and 65535")
)

// Config is read once at startup.
type Config struct {
	Port              string        `yaml:"port"`
	Token             string        `yaml:"token"`
	DatabasePath      string        `yaml:"database_path"`
	BusyTimeoutMs     int           `yaml:"busy_timeout_ms"`
	LogLevel          string        `yaml:"log_level"`
	LogFormat         string        `yaml:"log_format"`
	EnableCrossOrigin bool          `yaml:"enable_cross_origin"`
	CompressResponses bool          `yaml:"compress_responses"`
	AuditDatabasePath string        `yaml:"audit_database_path"`
	AuditRetention    time.Duration `yaml:"audit_retention"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:              "8080",
		DatabasePath:      "./database.db",
		BusyTimeoutMs:     5000,
		LogLevel:          "info",
		LogFormat:         "json",
		CompressResponses: true,
		AuditRetention:    30 * 24 * time.Hour,
	}
}

// Load builds the configuration from, in increasing priority: defaults, the
// YAML file at path (if path is not empty), a .env file in the working
// directory, and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Port)
	str("TOKEN", &c.Token)
	str("DATABASE_PATH", &c.DatabasePath)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("AUDIT_DATABASE_PATH", &c.AuditDatabasePath)

	if v, ok := lookup("BUSY_TIMEOUT_MS"); ok && v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BUSY_TIMEOUT_MS %q: %w", v, err)
		}
		c.BusyTimeoutMs = ms
	}
	if v, ok := lookup("ENABLE_CROSS_ORIGIN"); ok && v != "" {
		c.EnableCrossOrigin = v == "true" || v == "1"
	}
	if v, ok := lookup("COMPRESS_RESPONSES"); ok && v != "" {
		c.CompressResponses = v == "true" || v == "1"
	}
	if v, ok := lookup("AUDIT_RETENTION"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid AUDIT_RETENTION %q: %w", v, err)
		}
		c.AuditRetention = d
	}
	return nil
}

// Validate checks the settings the server cannot run without.
func (c *Config) Validate() error {
	if c.Token == "" {
		return ErrMissingToken
	}
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%w: %q", ErrInvalidPort, c.Port)
	}
	if c.DatabasePath == "" {
		return errors.New("DATABASE_PATH must not be empty")
	}
	return nil
}

// ListenAddr is the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return ":" + c.Port
}

func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMs) * time.Millisecond
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger described by the config.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.ToLower(c.LogFormat) == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
