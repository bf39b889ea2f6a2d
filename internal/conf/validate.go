// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateWebServerSettings(&settings.WebServer)...)
	ve.Errors = append(ve.Errors, validateReplicateSettings(&settings.Replicate)...)
	ve.Errors = append(ve.Errors, validateDatabaseSettings(settings)...)
	ve.Errors = append(ve.Errors, validateIconSetSettings(&settings.IconSet)...)

	if settings.Redis.Enabled && (settings.Redis.Port < 1 || settings.Redis.Port > 65535) {
		ve.Errors = append(ve.Errors, fmt.Sprintf("redis port must be between 1 and 65535, got %d", settings.Redis.Port))
	}

	if settings.MQTT.Enabled && settings.MQTT.Broker == "" {
		ve.Errors = append(ve.Errors, "mqtt broker is required when mqtt is enabled")
	}

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry dsn is required when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateWebServerSettings(s *WebServerSettings) []string {
	var errs []string

	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("webserver port must be between 1 and 65535, got %d", s.Port))
	}

	if s.RateLimit.Enabled {
		if s.RateLimit.WindowMs < 1 {
			errs = append(errs, "rate limit window must be a positive number of milliseconds")
		}
		if s.RateLimit.MaxRequests < 1 {
			errs = append(errs, "rate limit max requests must be at least 1")
		}
	}

	if s.CorsOrigin == "" {
		errs = append(errs, "webserver cors origin must not be empty, use \"*\" to allow any origin")
	}

	return errs
}

func validateReplicateSettings(s *ReplicateSettings) []string {
	var errs []string

	if u, err := url.Parse(s.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("replicate base url is invalid: %q", s.BaseURL))
	}
	if strings.TrimSpace(s.Version) == "" {
		errs = append(errs, "replicate model version is required")
	}
	if s.PollInterval <= 0 {
		errs = append(errs, "replicate poll interval must be positive")
	}
	if s.Timeout <= 0 {
		errs = append(errs, "replicate timeout must be positive")
	}

	return errs
}

func validateDatabaseSettings(settings *Settings) []string {
	var errs []string

	if settings.MySQL.Enabled {
		if settings.MySQL.Host == "" {
			errs = append(errs, "mysql host is required when mysql is enabled")
		}
		if settings.MySQL.Username == "" {
			errs = append(errs, "mysql username is required when mysql is enabled")
		}
		if settings.MySQL.Database == "" {
			errs = append(errs, "mysql database is required when mysql is enabled")
		}
		return errs
	}

	if settings.SQLite.Path == "" {
		errs = append(errs, "sqlite path is required")
	}

	return errs
}

func validateIconSetSettings(s *IconSetSettings) []string {
	var errs []string

	if s.Count < 1 {
		errs = append(errs, fmt.Sprintf("icon set count must be at least 1, got %d", s.Count))
	}
	if s.Delay < 0 {
		errs = append(errs, "icon set delay must not be negative")
	}

	return errs
}
