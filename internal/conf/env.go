// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/tphakala/iconforge/internal/secrets"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"replicate.apitoken", "REPLICATE_API_TOKEN", nil},
		{"replicate.baseurl", "REPLICATE_BASE_URL", validateEnvURL},

		{"redis.host", "REDIS_HOST", nil},
		{"redis.port", "REDIS_PORT", validateEnvPort},
		{"redis.password", "REDIS_PASSWORD", nil},

		{"sqlite.path", "DB_PATH", nil},

		{"webserver.port", "PORT", validateEnvPort},
		{"webserver.corsorigin", "CORS_ORIGIN", nil},
		{"webserver.ratelimit.windowms", "RATE_LIMIT_WINDOW_MS", validateEnvPositiveInt},
		{"webserver.ratelimit.maxrequests", "RATE_LIMIT_MAX_REQUESTS", validateEnvPositiveInt},

		{"mqtt.broker", "MQTT_BROKER", validateEnvURL},
		{"sentry.dsn", "SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n < 1 {
		return fmt.Errorf("must be a positive integer, got %d", n)
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("URL must include scheme and host, got '%s'", value)
	}
	return nil
}

// resolveSecrets expands ${VAR} references in secret settings and reads
// <ENV>_FILE secret files, which take precedence over configured values
func resolveSecrets(s *Settings) error {
	return secrets.ResolveAll([]secrets.Ref{
		{Name: "replicate.apitoken", FileEnv: "REPLICATE_API_TOKEN_FILE", Value: &s.Replicate.APIToken},
		{Name: "redis.password", FileEnv: "REDIS_PASSWORD_FILE", Value: &s.Redis.Password},
		{Name: "mysql.password", FileEnv: "MYSQL_PASSWORD_FILE", Value: &s.MySQL.Password},
		{Name: "mqtt.password", FileEnv: "MQTT_PASSWORD_FILE", Value: &s.MQTT.Password},
		{Name: "sentry.dsn", FileEnv: "SENTRY_DSN_FILE", Value: &s.Sentry.DSN},
	})
}
