// Package errors - telemetry and hook integration (optional)
package errors

import (
	"regexp"
	"sync"
	"sync/atomic"
)

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// ErrorHook is called for every enhanced error built while reporting is active
type ErrorHook func(ee *EnhancedError)

var (
	reporterMu        sync.RWMutex
	telemetryReporter TelemetryReporter

	hooksMu    sync.RWMutex
	errorHooks []ErrorHook

	// hasActiveReporting lets Build skip stack walking when nobody listens
	hasActiveReporting atomic.Bool
)

// SetTelemetryReporter sets the global telemetry reporter, nil disables reporting
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	telemetryReporter = reporter
	reporterMu.Unlock()
	updateReportingState()
}

// GetTelemetryReporter returns the current telemetry reporter
func GetTelemetryReporter() TelemetryReporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return telemetryReporter
}

// AddErrorHook registers a hook that receives every built error
func AddErrorHook(hook ErrorHook) {
	if hook == nil {
		return
	}
	hooksMu.Lock()
	errorHooks = append(errorHooks, hook)
	hooksMu.Unlock()
	updateReportingState()
}

// ClearErrorHooks removes all registered hooks
func ClearErrorHooks() {
	hooksMu.Lock()
	errorHooks = nil
	hooksMu.Unlock()
	updateReportingState()
}

func updateReportingState() {
	reporterMu.RLock()
	active := telemetryReporter != nil && telemetryReporter.IsEnabled()
	reporterMu.RUnlock()

	hooksMu.RLock()
	active = active || len(errorHooks) > 0
	hooksMu.RUnlock()

	hasActiveReporting.Store(active)
}

// reportToTelemetry forwards high and critical priority errors to the reporter
func reportToTelemetry(ee *EnhancedError) {
	reporter := GetTelemetryReporter()
	if reporter == nil || !reporter.IsEnabled() || ee.IsReported() {
		return
	}

	switch ee.Priority {
	case PriorityHigh, PriorityCritical:
		reporter.ReportError(ee)
	}
}

func runErrorHooks(ee *EnhancedError) {
	hooksMu.RLock()
	hooks := make([]ErrorHook, len(errorHooks))
	copy(hooks, errorHooks)
	hooksMu.RUnlock()

	for _, hook := range hooks {
		hook(ee)
	}
}

var (
	urlQueryRegex  = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	bearerRegex    = regexp.MustCompile(`(?i)bearer\s+\S+`)
	tokenRegex     = regexp.MustCompile(`(?i)(api[_-]?key|token|auth|password)[=:]\S+`)
	replicateToken = regexp.MustCompile(`r8_[0-9A-Za-z]{20,}`)
)

// ScrubMessage removes query strings, bearer tokens and API keys from a message
// before it leaves the process.
func ScrubMessage(message string) string {
	scrubbed := urlQueryRegex.ReplaceAllString(message, "$1?[REDACTED]")
	scrubbed = bearerRegex.ReplaceAllString(scrubbed, "Bearer [REDACTED]")
	scrubbed = tokenRegex.ReplaceAllString(scrubbed, "$1=[REDACTED]")
	scrubbed = replicateToken.ReplaceAllString(scrubbed, "[API_KEY_REDACTED]")
	return scrubbed
}
