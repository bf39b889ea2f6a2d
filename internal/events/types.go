// Package events publishes generation lifecycle events to external systems
// without blocking request handling.
package events

import (
	"context"
	"time"

	"github.com/tphakala/iconforge/internal/datastore"
)

// Event types
const (
	TypeGenerationCompleted = "generation.completed"
	TypeGenerationFailed    = "generation.failed"
)

// Event is a generation lifecycle event. It is serialized as JSON.
type Event struct {
	Type       string                     `json:"type"`
	Generation *datastore.ImageGeneration `json:"generation"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// NewGenerationEvent returns a completed or failed event for gen
func NewGenerationEvent(gen *datastore.ImageGeneration) Event {
	eventType := TypeGenerationCompleted
	if gen.Status == datastore.StatusFailed {
		eventType = TypeGenerationFailed
	}
	return Event{Type: eventType, Generation: gen, Timestamp: time.Now().UTC()}
}

// Publisher delivers events
type Publisher interface {
	// Publish sends an event. Implementations may deliver asynchronously.
	Publish(ctx context.Context, event Event) error
	// Close releases the publisher's resources
	Close()
}

// NoopPublisher discards events
type NoopPublisher struct{}

// Publish does nothing
func (NoopPublisher) Publish(context.Context, Event) error {
	return nil
}

// Close does nothing
func (NoopPublisher) Close() {}

// PublisherStats contains runtime statistics for monitoring
type PublisherStats struct {
	EventsReceived  uint64
	EventsPublished uint64
	EventsDropped   uint64
	PublishErrors   uint64
}
