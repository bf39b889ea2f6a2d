package api

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/tphakala/iconforge/internal/api/middleware"
	"github.com/tphakala/iconforge/internal/conf"
	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/logger"
	"github.com/tphakala/iconforge/internal/observability"
)

// Server is the main HTTP server for IconForge.
// It manages the Echo framework instance, middleware, and all HTTP routes.
type Server struct {
	// Core components
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings
	log      logger.Logger

	// Dependencies
	generations GenerationService
	iconSets    IconSetGenerator
	metrics     *observability.Metrics

	limiter    *mw.RateLimiter
	spaHandler *SPAHandler

	// Lifecycle management
	wg        sync.WaitGroup
	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(log logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// WithGenerationService sets the service behind the generation endpoints.
func WithGenerationService(svc GenerationService) ServerOption {
	return func(s *Server) {
		s.generations = svc
	}
}

// WithIconSetGenerator sets the icon set orchestrator.
func WithIconSetGenerator(gen IconSetGenerator) ServerOption {
	return func(s *Server) {
		s.iconSets = gen
	}
}

// WithMetrics enables HTTP metrics and, when telemetry has no separate
// listener, mounts /metrics on the API.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a new HTTP server with the given settings and options.
func New(settings *conf.Settings, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, errors.New(fmt.Errorf("invalid server configuration: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Server{
		config:    config,
		settings:  settings,
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		s.log = GetLogger()
	}
	if s.generations == nil || s.iconSets == nil {
		return nil, errors.Newf("generation service and icon set generator are required").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = config.Debug
	s.echo.HTTPErrorHandler = s.HTTPErrorHandler

	// Configure Echo server timeouts
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	if config.RateLimitEnabled {
		s.limiter = mw.NewRateLimiter(config.RateLimitWindow, config.RateLimitMax)
	}
	s.spaHandler = NewSPAHandler(config.StaticDir, s.log)

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.Bool("rate_limit", config.RateLimitEnabled),
		logger.Bool("static", s.spaHandler != nil),
		logger.Bool("debug", config.Debug))

	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())

	s.echo.Use(mw.NewRequestID())

	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}

	s.echo.Use(mw.NewRequestLogger(s.log))

	securityConfig := mw.SecurityConfig{
		AllowedOrigins:        s.config.AllowedOrigins,
		AllowCredentials:      true,
		HSTSMaxAge:            mw.HSTSMaxAge,
		HSTSExcludeSubdomains: false,
		ContentSecurityPolicy: "",
	}

	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders(securityConfig))

	if s.spaHandler != nil {
		s.echo.Use(s.spaHandler.StaticMiddleware())
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	if s.metrics != nil && s.settings.Telemetry.Enabled && s.settings.Telemetry.Listen == "" {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	var apiMiddleware []echo.MiddlewareFunc
	if s.limiter != nil {
		apiMiddleware = append(apiMiddleware, mw.NewRateLimit(s.limiter, nil))
	}
	api := s.echo.Group("/api", apiMiddleware...)

	api.GET("/health", s.apiHealthCheck)
	api.POST("/generate-image", s.generateImage)
	api.POST("/generate-icons", s.generateIcons)
	api.GET("/generations", s.listGenerations)
	api.GET("/generations/stats", s.generationStats)
	api.GET("/generations/:id", s.getGeneration)
	api.DELETE("/generations/:id", s.deleteGeneration)

	// Client-side routes, registered last
	if s.spaHandler != nil {
		s.echo.GET("/*", s.spaHandler.ServeApp)
	}
}

// Start begins serving HTTP requests in a background goroutine and returns
// immediately. The returned channel receives a startup or serve error and is
// closed when the server stops.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	s.wg.Go(func() {
		defer close(errCh)
		if err := s.startBlocking(); err != nil {
			s.log.Error("Server error", logger.Error(err))
			errCh <- err
		}
	})

	s.log.Info("HTTP server starting", logger.String("address", s.config.Address()))
	return errCh
}

// startBlocking begins serving HTTP requests and blocks until the server is shut down.
func (s *Server) startBlocking() error {
	err := s.echo.Start(s.config.Address())
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(fmt.Errorf("server error: %w", err)).
			Category(errors.CategoryNetwork).
			Context("address", s.config.Address()).
			Build()
	}
	return nil
}

// StartWithGracefulShutdown starts the server and shuts it down on SIGINT,
// SIGTERM or when ctx is cancelled.
func (s *Server) StartWithGracefulShutdown(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := s.Start()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutdown signal received, initiating graceful shutdown")
	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("Error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.wg.Wait()

	s.log.Info("Server shutdown complete", logger.Duration("uptime", time.Since(s.startTime)))
	return nil
}

// Echo returns the underlying Echo instance.
// This is useful for testing or advanced configuration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
