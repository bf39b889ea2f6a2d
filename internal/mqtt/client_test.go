package mqtt

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/iconforge/internal/conf"
	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/logger"
)

// closedPortBroker returns a broker URL pointing at a local port nobody listens on
func closedPortBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return "tcp://" + addr
}

func createTestClient(t *testing.T, broker string) Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Broker = broker
	cfg.ClientID = "iconforge-test"
	cfg.ReconnectCooldown = 0
	cfg.ConnectTimeout = 2 * time.Second

	c, err := NewClient(cfg, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)
	return c
}

func TestNewClient_RequiresBroker(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestConfigFromSettings(t *testing.T) {
	cfg := ConfigFromSettings(&conf.MQTTSettings{
		Broker:   "tcp://broker:1883",
		ClientID: "forge",
		Username: "user",
		Password: "secret",
	})

	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, "forge", cfg.ClientID)
	assert.Equal(t, "user", cfg.Username)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, DefaultConfig().PublishTimeout, cfg.PublishTimeout)
}

func TestConfigWithDefaults(t *testing.T) {
	a := Config{Broker: "tcp://broker:1883"}.withDefaults()
	b := Config{Broker: "tcp://broker:1883"}.withDefaults()

	assert.True(t, strings.HasPrefix(a.ClientID, "iconforge-"))
	assert.NotEqual(t, a.ClientID, b.ClientID)
	assert.Equal(t, DefaultConfig().ConnectTimeout, a.ConnectTimeout)
	assert.Equal(t, "fixed", Config{ClientID: "fixed"}.withDefaults().ClientID)
}

func TestPublishWhileDisconnected(t *testing.T) {
	c := createTestClient(t, closedPortBroker(t))

	err := c.Publish(t.Context(), "iconforge/test", []byte("{}"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))
	assert.False(t, c.IsConnected())
}

func TestConnect_RefusedBroker(t *testing.T) {
	c := createTestClient(t, closedPortBroker(t))

	err := c.Connect(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
	assert.False(t, c.IsConnected())
}

func TestConnect_Cooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Broker = closedPortBroker(t)
	cfg.ConnectTimeout = 2 * time.Second
	cfg.ReconnectCooldown = time.Hour

	c, err := NewClient(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)

	require.Error(t, c.Connect(t.Context()))

	err = c.Connect(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection attempt too recent")
}

func TestConnect_InvalidBrokerURL(t *testing.T) {
	c := createTestClient(t, "tcp://[::1")

	err := c.Connect(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
