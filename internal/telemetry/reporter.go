package telemetry

import (
	"fmt"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/iconforge/internal/errors"
)

// SentryReporter sends enhanced errors to Sentry. It implements errors.TelemetryReporter.
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a reporter
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

// IsEnabled reports whether errors are sent
func (r *SentryReporter) IsEnabled() bool {
	return r.enabled
}

// ReportError captures ee with its component and category as tags. Context values
// are not attached; they may contain prompts or URLs.
func (r *SentryReporter) ReportError(ee *errors.EnhancedError) {
	if !r.enabled || ee == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", ee.GetCategory())
		scope.SetTag("priority", ee.GetPriority())
		scope.SetLevel(levelFor(ee.GetPriority()))

		title := fmt.Sprintf("%s: %s", ee.GetComponent(), errors.ScrubMessage(ee.Error()))
		sentry.CaptureMessage(title)
	})

	ee.MarkReported()
}

func levelFor(priority string) sentry.Level {
	switch priority {
	case errors.PriorityCritical:
		return sentry.LevelFatal
	case errors.PriorityHigh:
		return sentry.LevelError
	case errors.PriorityLow:
		return sentry.LevelInfo
	default:
		return sentry.LevelWarning
	}
}
