// Package config loads application configuration from environment
// variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// AuditDBPath is the SQLite database file for the audit log.
	AuditDBPath string `env:"AUDIT_DB_PATH" envDefault:"cloudlaunch.db"`

	// StatePath is the JSON file holding the provisioned VM state.
	StatePath string `env:"STATE_PATH" envDefault:"state/vm.json"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Provider selects which registered provider serves requests.
	Provider string `env:"PROVIDER" envDefault:"sim"`

	// APIKey gates all mutating endpoints. Empty means the server refuses
	// writes entirely.
	APIKey string `env:"API_KEY"`

	// APIKeyMaxUses caps successful authorizations. Zero means unlimited.
	APIKeyMaxUses int `env:"API_KEY_MAX_USES" envDefault:"0"`

	// Rate limits, requests per minute per caller IP.
	RateLimitReadRPM  int `env:"RATE_LIMIT_READ_RPM" envDefault:"60"`
	RateLimitWriteRPM int `env:"RATE_LIMIT_WRITE_RPM" envDefault:"4"`

	// Concurrency caps for running jobs.
	MaxConcurrentJobs int `env:"MAX_CONCURRENT_JOBS" envDefault:"1"`
	MaxJobsPerIP      int `env:"MAX_JOBS_PER_IP" envDefault:"1"`

	// MaxActiveVMs caps concurrently provisioned VMs. Zero disables the cap.
	MaxActiveVMs int `env:"MAX_ACTIVE_VMS" envDefault:"3"`

	// AutoDestroyTTL is how long a provisioned VM lives before the expiry
	// timer tears it down. Zero or negative disables auto-destroy.
	AutoDestroyTTL time.Duration `env:"AUTO_DESTROY_TTL" envDefault:"30m"`

	// StreamHeartbeat is how long a log stream waits for new lines before
	// sending a ping frame.
	StreamHeartbeat time.Duration `env:"STREAM_HEARTBEAT" envDefault:"15s"`
}

// Load reads configuration from environment variables with sensible
// defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.sanitize()
	return cfg, nil
}

// sanitize applies guardrails to values loaded from the environment.
func (c *Config) sanitize() {
	if c.RateLimitReadRPM < 1 {
		c.RateLimitReadRPM = 1
	}
	if c.RateLimitWriteRPM < 1 {
		c.RateLimitWriteRPM = 1
	}
	if c.MaxConcurrentJobs < 1 {
		c.MaxConcurrentJobs = 1
	}
	if c.MaxJobsPerIP < 1 {
		c.MaxJobsPerIP = 1
	}
	if c.MaxActiveVMs < 0 {
		c.MaxActiveVMs = 0
	}
	if c.StreamHeartbeat < time.Second {
		c.StreamHeartbeat = time.Second
	}
}

// Level parses the configured log level, defaulting to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
