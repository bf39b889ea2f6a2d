// Package conf loads and validates IconForge settings from config.yaml and the environment.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// WebServerSettings contains HTTP API settings
type WebServerSettings struct {
	Host            string        // listen host, empty for all interfaces
	Port            int           // listen port
	CorsOrigin      string        // allowed CORS origin, "*" for any
	BodyLimit       string        // maximum request body size, e.g. "10M"
	StaticDir       string        // prebuilt frontend bundle served outside /api, empty to disable
	ShutdownTimeout time.Duration // graceful shutdown timeout
	RateLimit       RateLimitSettings
}

// RateLimitSettings controls the per client limiter mounted on /api
type RateLimitSettings struct {
	Enabled     bool
	WindowMs    int // window length in milliseconds
	MaxRequests int // requests allowed per window
}

// Window returns the rate limit window as a duration
func (r RateLimitSettings) Window() time.Duration {
	return time.Duration(r.WindowMs) * time.Millisecond
}

// ReplicateSettings contains the hosted image model settings
type ReplicateSettings struct {
	APIToken     string `yaml:"-"` // never written back to disk
	BaseURL      string
	Model        string
	Version      string        // model version hash used for predictions
	PollInterval time.Duration // prediction status poll interval
	Timeout      time.Duration // upper bound for one prediction including polling
}

// CacheSettings controls the generated image result cache
type CacheSettings struct {
	TTL             time.Duration
	CleanupInterval time.Duration // expired entry sweep interval for the in-memory cache
}

// RedisSettings controls the optional shared result cache
type RedisSettings struct {
	Enabled  bool
	Host     string
	Port     int
	Password string `yaml:"-"`
	DB       int
}

// Addr returns host:port
func (r RedisSettings) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// SQLiteSettings contains SQLite database settings
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings contains MySQL database settings
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string `yaml:"-"`
	Database string
	Host     string
	Port     string
}

// IconSetSettings controls the multi icon orchestration
type IconSetSettings struct {
	Count int           // icons per set
	Delay time.Duration // pause between consecutive generations
}

// TelemetrySettings controls the Prometheus endpoint
type TelemetrySettings struct {
	Enabled bool
	Listen  string // separate listen address, empty to serve /metrics on the API port
}

// MQTTSettings controls generation event publishing
type MQTTSettings struct {
	Enabled     bool
	Broker      string
	ClientID    string
	Username    string
	Password    string `yaml:"-"`
	TopicPrefix string
}

// SentrySettings controls opt-in error reporting
type SentrySettings struct {
	Enabled     bool
	DSN         string `yaml:"-"`
	Environment string
	Debug       bool
}

// Settings contains all configuration options for IconForge
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-" mapstructure:"-"`
	BuildDate string `yaml:"-" mapstructure:"-"`

	Logging   logger.LoggingConfig
	WebServer WebServerSettings
	Replicate ReplicateSettings
	Cache     CacheSettings
	Redis     RedisSettings
	SQLite    SQLiteSettings
	MySQL     MySQLSettings
	IconSet   IconSetSettings
	Telemetry TelemetrySettings
	MQTT      MQTTSettings
	Sentry    SentrySettings
}

// settingsMutex serializes loads, viper state is global
var settingsMutex sync.Mutex

// Load reads the configuration file and environment variables into a new Settings.
// An empty configFile searches the default config paths and creates a default
// config.yaml when none exists.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal-config").
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, fmt.Errorf("error resolving secrets: %w", err)
	}

	// REDIS_HOST alone is enough to opt into redis
	if os.Getenv("REDIS_HOST") != "" {
		settings.Redis.Enabled = true
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// initViper sets defaults, binds the environment and reads the config file
func initViper(configFile string) error {
	viper.SetConfigType("yaml")

	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		// Invalid env values fall back to the file or default value at validation
		logger.Global().Module("conf").Warn("environment variable issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.New(err).
				Category(errors.CategoryConfiguration).
				Context("config_file", configFile).
				Build()
		}
		return nil
	}

	viper.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config to dir and reads it back
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded default config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	logger.Global().Module("conf").Info("created default config file", logger.String("path", configPath))
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// ConfigFileUsed returns the path of the config file viper read, if any
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// ToYAML renders the settings as YAML. Secrets are tagged out.
func (s *Settings) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return data, nil
}
