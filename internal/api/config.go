// Package api provides the HTTP server for IconForge: the JSON API under /api,
// health checks, optional /metrics and the prebuilt frontend bundle.
package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tphakala/iconforge/internal/conf"
	"github.com/tphakala/iconforge/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout = 30 * time.Second
	// An icon set runs several sequential predictions in one request
	DefaultWriteTimeout    = 15 * time.Minute
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultBodyLimit       = "10M"

	DefaultRateLimitWindow = time.Minute
	DefaultRateLimitMax    = 10
)

// Config holds the HTTP server configuration.
type Config struct {
	// Server binding
	Host string // Host to bind to (empty for all interfaces)
	Port int    // Port to listen on

	// Security settings
	AllowedOrigins []string // CORS allowed origins

	// Timeouts
	ReadTimeout     time.Duration // Maximum duration for reading request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum time to wait for next request
	ShutdownTimeout time.Duration // Maximum time to wait for graceful shutdown

	// Limits
	BodyLimit        string // Maximum request body size (e.g., "1M", "10M")
	RateLimitEnabled bool
	RateLimitWindow  time.Duration
	RateLimitMax     int

	// Frontend bundle directory, empty to disable
	StaticDir string

	Debug bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:             "",
		Port:             3000,
		AllowedOrigins:   []string{"*"},
		ReadTimeout:      DefaultReadTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		IdleTimeout:      DefaultIdleTimeout,
		ShutdownTimeout:  DefaultShutdownTimeout,
		BodyLimit:        DefaultBodyLimit,
		RateLimitEnabled: true,
		RateLimitWindow:  DefaultRateLimitWindow,
		RateLimitMax:     DefaultRateLimitMax,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	ws := settings.WebServer

	cfg.Host = ws.Host
	if ws.Port != 0 {
		cfg.Port = ws.Port
	}
	if origins := splitOrigins(ws.CorsOrigin); len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}
	if ws.BodyLimit != "" {
		cfg.BodyLimit = ws.BodyLimit
	}
	if ws.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = ws.ShutdownTimeout
	}

	cfg.RateLimitEnabled = ws.RateLimit.Enabled
	if ws.RateLimit.WindowMs > 0 {
		cfg.RateLimitWindow = ws.RateLimit.Window()
	}
	if ws.RateLimit.MaxRequests > 0 {
		cfg.RateLimitMax = ws.RateLimit.MaxRequests
	}

	cfg.StaticDir = ws.StaticDir
	cfg.Debug = settings.Debug

	return cfg
}

// splitOrigins accepts a single origin or a comma separated list
func splitOrigins(value string) []string {
	var origins []string
	for o := range strings.SplitSeq(value, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	// Validate timeouts
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}

	if c.RateLimitEnabled && (c.RateLimitWindow <= 0 || c.RateLimitMax < 1) {
		return fmt.Errorf("rate limit requires a positive window and max requests")
	}

	return nil
}

// Address returns the full address string for the server to listen on.
func (c *Config) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// String returns a human-readable representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf("Server Config: address=%s, ratelimit=%v, static=%q, debug=%v",
		c.Address(), c.RateLimitEnabled, c.StaticDir, c.Debug)
}
