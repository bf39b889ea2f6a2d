package events

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tphakala/iconforge/internal/conf"
	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/logger"
	"github.com/tphakala/iconforge/internal/mqtt"
)

// MQTTPublisher publishes events to {prefix}/{type}
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	log    logger.Logger
}

// NewMQTTPublisher connects to the configured broker
func NewMQTTPublisher(ctx context.Context, settings *conf.MQTTSettings, log logger.Logger) (*MQTTPublisher, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	client, err := mqtt.NewClient(mqtt.ConfigFromSettings(settings), log)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		client.Disconnect()
		return nil, err
	}

	log.Info("MQTT event publisher connected",
		logger.String("broker", settings.Broker),
		logger.String("topic_prefix", settings.TopicPrefix))

	return newMQTTPublisherWithClient(client, settings.TopicPrefix, log), nil
}

func newMQTTPublisherWithClient(client mqtt.Client, prefix string, log logger.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		log:    log,
	}
}

// Topic returns the topic an event type is published to
func (p *MQTTPublisher) Topic(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	return p.prefix + "/" + eventType
}

// Publish serializes event as JSON and publishes it
func (p *MQTTPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.New(err).
			Component("events").
			Category(errors.CategoryMQTTPublish).
			Context("operation", "marshal-event").
			Build()
	}

	topic := p.Topic(event.Type)
	if err := p.client.Publish(ctx, topic, payload); err != nil {
		return err
	}

	p.log.Debug("event published", logger.String("topic", topic))
	return nil
}

// Close disconnects from the broker
func (p *MQTTPublisher) Close() {
	p.client.Disconnect()
}
