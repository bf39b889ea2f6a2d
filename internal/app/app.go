// Package app assembles IconForge components from settings. Each CLI command
// builds the part of the graph it needs and closes it when done.
package app

import (
	"context"
	"time"

	"github.com/tphakala/iconforge/internal/conf"
	"github.com/tphakala/iconforge/internal/datastore"
	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/events"
	"github.com/tphakala/iconforge/internal/generation"
	"github.com/tphakala/iconforge/internal/iconset"
	"github.com/tphakala/iconforge/internal/imagegen"
	"github.com/tphakala/iconforge/internal/logger"
	"github.com/tphakala/iconforge/internal/observability"
	"github.com/tphakala/iconforge/internal/telemetry"
)

// shutdownTimeout bounds event draining and telemetry flushing on Close
const shutdownTimeout = 5 * time.Second

type closer struct {
	name string
	fn   func() error
}

// App holds the assembled components
type App struct {
	Settings *conf.Settings
	Log      logger.Logger

	Store       datastore.Manager
	Repo        datastore.GenerationRepository
	Metrics     *observability.Metrics
	Provider    *imagegen.ReplicateProvider
	Generations *generation.Service
	IconSets    *iconset.Orchestrator

	replicateOpts []imagegen.ReplicateOption
	closers       []closer
}

// Option configures an App
type Option func(*App)

// WithReplicateOptions passes options to the Replicate provider
func WithReplicateOptions(opts ...imagegen.ReplicateOption) Option {
	return func(a *App) {
		a.replicateOpts = append(a.replicateOpts, opts...)
	}
}

// New creates an App for settings. Nothing is opened until one of the Open
// methods is called.
func New(settings *conf.Settings, log logger.Logger, opts ...Option) *App {
	if log == nil {
		log = logger.Global().Module("app")
	}
	a := &App{Settings: settings, Log: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// OpenStore opens the configured database and runs migrations
func (a *App) OpenStore() error {
	if a.Store != nil {
		return nil
	}

	store, err := datastore.NewManager(a.Settings, a.Log.Module("datastore"))
	if err != nil {
		return err
	}
	if err := store.Initialize(); err != nil {
		_ = store.Close()
		return err
	}

	a.Store = store
	a.Repo = datastore.NewGenerationRepository(store.DB())
	a.addCloser("database", store.Close)
	return nil
}

// OpenHistory opens the store and returns a service for reading and deleting
// records. It does not need a Replicate token; generating through the returned
// service is only possible after OpenServices.
func (a *App) OpenHistory() (*generation.Service, error) {
	if a.Generations != nil {
		return a.Generations, nil
	}
	if err := a.OpenStore(); err != nil {
		return nil, err
	}
	return generation.NewService(nil, a.Repo, a.Log.Module("generation")), nil
}

// OpenServices builds the full generation pipeline: telemetry, database,
// metrics, result cache, Replicate provider, event publisher, generation
// service and icon set orchestrator.
func (a *App) OpenServices(ctx context.Context) error {
	if a.Generations != nil {
		return nil
	}

	if err := telemetry.InitSentry(a.Settings, a.Log.Module("telemetry")); err != nil {
		a.Log.Warn("Sentry initialization failed, continuing without error reporting", logger.Error(err))
	} else if a.Settings.Sentry.Enabled {
		a.addCloser("telemetry", func() error {
			telemetry.Shutdown(shutdownTimeout)
			return nil
		})
	}

	if err := a.OpenStore(); err != nil {
		return err
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("operation", "create-metrics").
			Build()
	}
	a.Metrics = metrics

	provider, err := imagegen.NewReplicateProvider(&a.Settings.Replicate, a.Log.Module("replicate"), a.replicateOpts...)
	if err != nil {
		return err
	}
	a.Provider = provider
	a.addCloser("replicate", func() error {
		provider.Close()
		return nil
	})

	cache := imagegen.NewResultCache(ctx, a.Settings, a.Log.Module("cache"))
	a.addCloser("cache", cache.Close)

	generator := imagegen.NewGenerator(provider, a.Log.Module("imagegen"),
		imagegen.WithCache(cache, a.Settings.Cache.TTL),
		imagegen.WithMetrics(metrics.ImageGen))

	publisher := a.openPublisher(ctx)

	a.Generations = generation.NewService(generator, a.Repo, a.Log.Module("generation"),
		generation.WithPublisher(publisher),
		generation.WithMetrics(metrics.ImageGen))

	a.IconSets = iconset.NewOrchestrator(a.Generations, &a.Settings.IconSet, a.Log.Module("iconset"),
		iconset.WithMetrics(metrics.ImageGen))

	return nil
}

// openPublisher connects the MQTT event publisher when enabled. A broker that
// cannot be reached disables events rather than failing startup.
func (a *App) openPublisher(ctx context.Context) events.Publisher {
	if !a.Settings.MQTT.Enabled {
		return events.NoopPublisher{}
	}

	log := a.Log.Module("events")
	mqttPublisher, err := events.NewMQTTPublisher(ctx, &a.Settings.MQTT, log)
	if err != nil {
		log.Warn("MQTT broker unavailable, generation events disabled",
			logger.String("broker", a.Settings.MQTT.Broker),
			logger.Error(err))
		return events.NoopPublisher{}
	}

	async := events.NewAsyncPublisher(mqttPublisher, events.DefaultConfig(), log)
	a.addCloser("events", func() error {
		async.Close()
		return nil
	})
	return async
}

// Close releases everything opened, in reverse order
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.Log.Warn("error closing component", logger.String("component", c.name), logger.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// SetupLogging creates the central logger from the logging settings and makes
// it the global logger. Debug mode lowers every output to debug level.
func SetupLogging(settings *conf.Settings) (*logger.CentralLogger, error) {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = "debug"
		if cfg.Console != nil {
			console := *cfg.Console
			console.Level = "debug"
			cfg.Console = &console
		}
	}

	central, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("operation", "setup-logging").
			Build()
	}
	logger.SetGlobal(central)
	return central, nil
}
