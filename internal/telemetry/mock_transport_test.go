package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// MockTransport implements sentry.Transport for testing
type MockTransport struct {
	mu     sync.RWMutex
	events []*sentry.Event
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Configure implements sentry.Transport.
//
//nolint:gocritic // hugeParam: interface requirement, cannot change signature
func (t *MockTransport) Configure(_ sentry.ClientOptions) {}

// SendEvent implements sentry.Transport
func (t *MockTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

// Flush implements sentry.Transport
func (t *MockTransport) Flush(time.Duration) bool {
	return true
}

// FlushWithContext implements sentry.Transport
func (t *MockTransport) FlushWithContext(ctx context.Context) bool {
	return ctx.Err() == nil
}

// Close implements sentry.Transport
func (t *MockTransport) Close() {}

// GetEvents returns captured events
func (t *MockTransport) GetEvents() []*sentry.Event {
	t.mu.RLock()
	defer t.mu.RUnlock()

	events := make([]*sentry.Event, len(t.events))
	copy(events, t.events)
	return events
}
