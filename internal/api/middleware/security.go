package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Security configuration constants.
const (
	// HSTSMaxAge is the max-age value for HSTS header (1 year in seconds).
	HSTSMaxAge = 31536000

	// HeaderUserID carries the optional caller identity stored with each generation
	HeaderUserID = "X-User-Id"
)

// SecurityConfig holds configuration for security middleware.
type SecurityConfig struct {
	// CORS settings
	AllowedOrigins   []string
	AllowCredentials bool

	// HSTS settings
	HSTSMaxAge            int
	HSTSExcludeSubdomains bool

	// Content Security Policy
	ContentSecurityPolicy string
}

// DefaultSecurityConfig returns a SecurityConfig with sensible defaults.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		AllowedOrigins:        []string{"*"},
		AllowCredentials:      true,
		HSTSMaxAge:            HSTSMaxAge,
		HSTSExcludeSubdomains: false,
		ContentSecurityPolicy: "",
	}
}

// NewCORS creates a CORS middleware with the given configuration.
// A wildcard origin with credentials reflects the request origin, which is
// what browsers require for credentialed requests.
func NewCORS(config SecurityConfig) echo.MiddlewareFunc {
	cors := middleware.CORSConfig{
		AllowOrigins: config.AllowedOrigins,
		AllowMethods: []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodPut,
			http.MethodPatch,
			http.MethodPost,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			echo.HeaderXRequestID,
			HeaderUserID,
			"X-Requested-With",
		},
		ExposeHeaders: []string{
			echo.HeaderXRequestID,
			HeaderRateLimitLimit,
			HeaderRateLimitRemaining,
			HeaderRateLimitReset,
			HeaderRateLimitPolicy,
		},
		AllowCredentials: config.AllowCredentials,
	}

	if config.AllowCredentials && slices.Contains(config.AllowedOrigins, "*") {
		cors.AllowOrigins = nil
		cors.AllowOriginFunc = func(string) (bool, error) {
			return true, nil
		}
	}

	return middleware.CORSWithConfig(cors)
}

// NewSecureHeaders creates a middleware that sets security-related HTTP headers.
func NewSecureHeaders(config SecurityConfig) echo.MiddlewareFunc {
	return middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "0",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		HSTSMaxAge:            config.HSTSMaxAge,
		HSTSExcludeSubdomains: config.HSTSExcludeSubdomains,
		ContentSecurityPolicy: config.ContentSecurityPolicy,
		ReferrerPolicy:        "no-referrer",
	})
}

// NewBodyLimit creates a middleware that limits the request body size.
func NewBodyLimit(limit string) echo.MiddlewareFunc {
	return middleware.BodyLimit(limit)
}
