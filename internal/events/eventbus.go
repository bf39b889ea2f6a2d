package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/logger"
)

// Config holds async publisher configuration
type Config struct {
	BufferSize     int
	Workers        int
	PublishTimeout time.Duration
}

// DefaultConfig returns the default async publisher configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:     256,
		Workers:        1,
		PublishTimeout: 10 * time.Second,
	}
}

// AsyncPublisher queues events and delivers them to a downstream Publisher from
// worker goroutines. Publish never blocks; events are dropped when the queue is full.
type AsyncPublisher struct {
	next      Publisher
	eventChan chan Event
	timeout   time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	mu      sync.RWMutex

	stats struct {
		received  atomic.Uint64
		published atomic.Uint64
		dropped   atomic.Uint64
		errors    atomic.Uint64
	}

	log logger.Logger
}

// NewAsyncPublisher starts the workers and returns the publisher
func NewAsyncPublisher(next Publisher, cfg Config, log logger.Logger) *AsyncPublisher {
	defaults := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaults.PublishTimeout
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	ap := &AsyncPublisher{
		next:      next,
		eventChan: make(chan Event, cfg.BufferSize),
		timeout:   cfg.PublishTimeout,
		ctx:       ctx,
		cancel:    cancel,
		log:       log,
	}

	ap.running.Store(true)
	for i := range cfg.Workers {
		ap.wg.Add(1)
		go ap.worker(i)
	}

	log.Debug("async event publisher started",
		logger.Int("buffer_size", cfg.BufferSize),
		logger.Int("workers", cfg.Workers))

	return ap
}

// Publish enqueues event without blocking. It returns a limit error when the
// queue is full and nil once the event is accepted.
func (ap *AsyncPublisher) Publish(_ context.Context, event Event) error {
	ap.mu.RLock()
	defer ap.mu.RUnlock()

	if !ap.running.Load() {
		ap.stats.dropped.Add(1)
		return errors.Newf("event publisher is closed").
			Component("events").
			Category(errors.CategoryMQTTPublish).
			Build()
	}

	select {
	case ap.eventChan <- event:
		ap.stats.received.Add(1)
		return nil
	default:
		ap.stats.dropped.Add(1)
		ap.log.Debug("event dropped due to full buffer", logger.String("type", event.Type))
		return errors.Newf("event buffer full").
			Component("events").
			Category(errors.CategoryLimit).
			Context("event_type", event.Type).
			Build()
	}
}

func (ap *AsyncPublisher) worker(id int) {
	defer ap.wg.Done()

	log := ap.log.With(logger.Int("worker_id", id))
	for {
		select {
		case <-ap.ctx.Done():
			return
		case event, ok := <-ap.eventChan:
			if !ok {
				return
			}
			ap.deliver(event, log)
		}
	}
}

// deliver sends one event downstream, recovering from publisher panics
func (ap *AsyncPublisher) deliver(event Event, log logger.Logger) {
	defer func() {
		if r := recover(); r != nil {
			ap.stats.errors.Add(1)
			log.Error("event publisher panicked",
				logger.String("type", event.Type),
				logger.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ap.ctx, ap.timeout)
	defer cancel()

	if err := ap.next.Publish(ctx, event); err != nil {
		ap.stats.errors.Add(1)
		log.Warn("event publish failed",
			logger.String("type", event.Type),
			logger.Error(err))
		return
	}
	ap.stats.published.Add(1)
}

// Shutdown stops accepting events, drains the queue and waits for the workers.
// It returns an error if draining takes longer than timeout.
func (ap *AsyncPublisher) Shutdown(timeout time.Duration) error {
	ap.mu.Lock()
	if !ap.running.Swap(false) {
		ap.mu.Unlock()
		return nil
	}
	close(ap.eventChan)
	ap.mu.Unlock()

	done := make(chan struct{})
	go func() {
		ap.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		ap.cancel()
		return nil
	case <-timer.C:
		ap.cancel()
		<-done
		ap.log.Warn("event publisher shutdown timeout exceeded")
		return errors.Newf("shutdown timeout exceeded").
			Component("events").
			Category(errors.CategoryTimeout).
			Build()
	}
}

// Close drains pending events and closes the downstream publisher
func (ap *AsyncPublisher) Close() {
	_ = ap.Shutdown(ap.timeout)
	ap.next.Close()
}

// Stats returns current publisher statistics
func (ap *AsyncPublisher) Stats() PublisherStats {
	return PublisherStats{
		EventsReceived:  ap.stats.received.Load(),
		EventsPublished: ap.stats.published.Load(),
		EventsDropped:   ap.stats.dropped.Load(),
		PublishErrors:   ap.stats.errors.Load(),
	}
}
