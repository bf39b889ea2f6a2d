package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/iconforge/internal/datastore"
	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/logger"
)

// mockClient implements mqtt.Client and records publishes
type mockClient struct {
	mu           sync.Mutex
	connected    bool
	topics       []string
	payloads     [][]byte
	publishErr   error
	disconnected bool
}

func (m *mockClient) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *mockClient) Publish(_ context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.topics = append(m.topics, topic)
	m.payloads = append(m.payloads, payload)
	return nil
}

func (m *mockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockClient) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.disconnected = true
}

// recordingPublisher collects events and can block until released
type recordingPublisher struct {
	mu      sync.Mutex
	events  []Event
	err     error
	release chan struct{}
	closed  bool
}

func (r *recordingPublisher) Publish(ctx context.Context, event Event) error {
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestNewGenerationEvent(t *testing.T) {
	ok := NewGenerationEvent(&datastore.ImageGeneration{ID: "a", Status: datastore.StatusSuccess})
	assert.Equal(t, TypeGenerationCompleted, ok.Type)

	failed := NewGenerationEvent(&datastore.ImageGeneration{ID: "b", Status: datastore.StatusFailed})
	assert.Equal(t, TypeGenerationFailed, failed.Type)
	assert.False(t, failed.Timestamp.IsZero())
}

func TestMQTTPublisher_PublishesJSONToPrefixedTopic(t *testing.T) {
	client := &mockClient{connected: true}
	p := newMQTTPublisherWithClient(client, "iconforge/", logger.NewNopLogger())

	gen := &datastore.ImageGeneration{ID: "gen-1", Prompt: "rocket", Status: datastore.StatusSuccess}
	require.NoError(t, p.Publish(t.Context(), NewGenerationEvent(gen)))

	require.Len(t, client.topics, 1)
	assert.Equal(t, "iconforge/generation.completed", client.topics[0])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(client.payloads[0], &decoded))
	assert.Equal(t, "generation.completed", decoded["type"])
	generation, ok := decoded["generation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gen-1", generation["id"])
	assert.Equal(t, "rocket", generation["prompt"])

	p.Close()
	assert.True(t, client.disconnected)
}

func TestMQTTPublisher_TopicWithoutPrefix(t *testing.T) {
	p := newMQTTPublisherWithClient(&mockClient{}, "", nil)
	assert.Equal(t, "generation.failed", p.Topic(TypeGenerationFailed))
}

func TestMQTTPublisher_ClientError(t *testing.T) {
	client := &mockClient{connected: true, publishErr: errors.NewStd("broker gone")}
	p := newMQTTPublisherWithClient(client, "iconforge", logger.NewNopLogger())

	err := p.Publish(t.Context(), Event{Type: TypeGenerationCompleted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker gone")
}

func TestAsyncPublisher_DeliversAndDrains(t *testing.T) {
	defer goleak.VerifyNone(t)

	next := &recordingPublisher{}
	ap := NewAsyncPublisher(next, Config{BufferSize: 16, Workers: 2}, logger.NewNopLogger())

	for range 10 {
		require.NoError(t, ap.Publish(t.Context(), Event{Type: TypeGenerationCompleted}))
	}

	ap.Close()

	assert.Equal(t, 10, next.count())
	assert.True(t, next.closed)

	stats := ap.Stats()
	assert.Equal(t, uint64(10), stats.EventsReceived)
	assert.Equal(t, uint64(10), stats.EventsPublished)
	assert.Zero(t, stats.EventsDropped)

	err := ap.Publish(t.Context(), Event{Type: TypeGenerationCompleted})
	require.Error(t, err, "publishing after close fails")
}

func TestAsyncPublisher_DropsWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	next := &recordingPublisher{release: make(chan struct{})}
	ap := NewAsyncPublisher(next, Config{BufferSize: 1, Workers: 1, PublishTimeout: time.Second}, nil)

	var dropped int
	for range 5 {
		if err := ap.Publish(t.Context(), Event{Type: TypeGenerationFailed}); err != nil {
			assert.True(t, errors.IsCategory(err, errors.CategoryLimit))
			dropped++
		}
	}
	assert.GreaterOrEqual(t, dropped, 3)

	close(next.release)
	require.NoError(t, ap.Shutdown(time.Second))

	stats := ap.Stats()
	assert.Equal(t, uint64(dropped), stats.EventsDropped)
	assert.Equal(t, stats.EventsReceived, stats.EventsPublished)
}

func TestAsyncPublisher_CountsDownstreamErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	next := &recordingPublisher{err: errors.NewStd("unreachable")}
	ap := NewAsyncPublisher(next, DefaultConfig(), nil)

	require.NoError(t, ap.Publish(t.Context(), Event{Type: TypeGenerationCompleted}))
	require.NoError(t, ap.Shutdown(time.Second))

	assert.Equal(t, uint64(1), ap.Stats().PublishErrors)
	assert.Zero(t, ap.Stats().EventsPublished)
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(t.Context(), Event{}))
	p.Close()
}
