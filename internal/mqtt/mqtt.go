// Package mqtt wraps the paho client with context-aware connect and publish
// calls and categorized errors.
package mqtt

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/iconforge/internal/conf"
)

// Client publishes payloads to an MQTT broker
type Client interface {
	// Connect resolves the broker host and connects, bounded by ctx and ConnectTimeout.
	Connect(ctx context.Context) error
	// Publish sends payload to topic with QoS 0, no retain.
	Publish(ctx context.Context, topic string, payload []byte) error
	IsConnected() bool
	Disconnect()
}

// Config holds broker connection settings
type Config struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string // generated when empty
	Username string
	Password string

	ReconnectCooldown time.Duration // minimum gap between Connect attempts
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration // quiesce time handed to paho
}

// DefaultConfig returns the default timeouts, without a broker
func DefaultConfig() Config {
	return Config{
		ReconnectCooldown: 5 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// withDefaults fills zero timeouts and an empty client id
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = d.PublishTimeout
	}
	if c.DisconnectTimeout <= 0 {
		c.DisconnectTimeout = d.DisconnectTimeout
	}
	if c.ClientID == "" {
		// brokers drop the older session when two clients share an id
		c.ClientID = "iconforge-" + uuid.NewString()[:8]
	}
	return c
}

// ConfigFromSettings builds a Config from the mqtt settings section
func ConfigFromSettings(settings *conf.MQTTSettings) Config {
	cfg := DefaultConfig()
	cfg.Broker = settings.Broker
	cfg.ClientID = settings.ClientID
	cfg.Username = settings.Username
	cfg.Password = settings.Password
	return cfg
}
