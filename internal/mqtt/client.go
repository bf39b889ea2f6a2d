package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/logger"
)

// client implements the Client interface.
type client struct {
	config          Config
	internalClient  paho.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	log             logger.Logger
}

// NewClient creates a new MQTT client with the provided configuration.
func NewClient(cfg Config, log logger.Logger) (Client, error) {
	if cfg.Broker == "" {
		return nil, errors.Newf("MQTT broker is not configured").
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &client{config: cfg.withDefaults(), log: log}, nil
}

// Connect attempts to establish a connection to the MQTT broker.
// It first resolves the broker's hostname and then attempts to connect.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return errors.Newf("connection attempt too recent, last attempt was %v ago", since).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Build()
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Context("operation", "parse-broker-url").
			Build()
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(err).
				Component("mqtt").
				Category(errors.CategoryNetwork).
				Context("operation", "resolve-broker").
				Context("host", host).
				Build()
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.internalClient = paho.NewClient(opts)

	token := c.internalClient.Connect()
	if err := waitToken(ctx, token, c.config.ConnectTimeout); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Context("operation", "connect").
			Context("broker", c.config.Broker).
			Build()
	}

	return nil
}

// Publish sends a message to the specified topic on the MQTT broker.
// Messages are sent with QoS 0 and are not retained.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsConnected() {
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	c.log.Debug("publishing to topic", logger.String("topic", topic), logger.Int("bytes", len(payload)))

	token := c.internalClient.Publish(topic, 0, false, payload)
	if err := waitToken(ctx, token, c.config.PublishTimeout); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient != nil && c.internalClient.IsConnectionOpen() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
	}
}

func (c *client) onConnect(paho.Client) {
	c.log.Info("connected to MQTT broker", logger.String("broker", c.config.Broker))
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	c.log.Warn("connection to MQTT broker lost",
		logger.String("broker", c.config.Broker),
		logger.Error(err))
}

// waitToken waits for a paho token, bounded by timeout and ctx
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.NewStd("operation timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
}
