// Package telemetry provides opt-in error reporting to Sentry
package telemetry

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/iconforge/internal/conf"
	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/logger"
)

var sentryInitialized atomic.Bool

// InitSentry initializes the Sentry SDK and registers the error reporter.
// It does nothing unless sentry.enabled is set.
func InitSentry(settings *conf.Settings, log logger.Logger) error {
	return initSentry(settings, nil, log)
}

// initSentry allows tests to supply a transport
func initSentry(settings *conf.Settings, transport sentry.Transport, log logger.Logger) error {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if !settings.Sentry.Enabled {
		log.Debug("Sentry telemetry is disabled (opt-in required)")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		Debug:            settings.Sentry.Debug,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      settings.Sentry.Environment,
		ServerName:       "",
		Release:          fmt.Sprintf("iconforge@%s", settings.Version),
		BeforeSend:       beforeSend,
		Transport:        transport,
	})
	if err != nil {
		return errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sentryInitialized.Store(true)
	errors.SetTelemetryReporter(NewSentryReporter(true))

	log.Info("Sentry telemetry initialized",
		logger.String("environment", settings.Sentry.Environment))
	return nil
}

// beforeSend removes host and user identifying data from events
func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	event.Message = errors.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = errors.ScrubMessage(event.Exception[i].Value)
	}
	return event
}

// Flush waits for queued events to be sent
func Flush(timeout time.Duration) bool {
	if !sentryInitialized.Load() {
		return true
	}
	return sentry.Flush(timeout)
}

// Shutdown detaches the reporter and flushes pending events
func Shutdown(timeout time.Duration) {
	errors.SetTelemetryReporter(nil)
	Flush(timeout)
	sentryInitialized.Store(false)
}
