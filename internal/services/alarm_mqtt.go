package services

import (
	"context"
	"fmt"

	"DriveGuard/go-backend/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Publisher is the part of mqtt.Client the alarm needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTAlarm switches the in-car alarm unit of a trip. State is published
// retained so a unit that reconnects picks up the current value.
type MQTTAlarm struct {
	client Publisher
	prefix string
	logger *zap.Logger
}

func NewMQTTAlarm(client Publisher, prefix string, logger *zap.Logger) *MQTTAlarm {
	return &MQTTAlarm{client: client, prefix: prefix, logger: logger.Named("alarm")}
}

func (a *MQTTAlarm) topic(tripID int64) string {
	return fmt.Sprintf("%s/trips/%d/alarm", a.prefix, tripID)
}

func (a *MQTTAlarm) SetAlarm(ctx context.Context, tripID int64, on bool) error {
	payload := "off"
	if on {
		payload = "on"
	}
	topic := a.topic(tripID)

	token := a.client.Publish(topic, 1, true, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish %s to %s: %w", payload, topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", payload, topic, err)
	}

	a.logger.Debug("alarm published", zap.String("topic", topic), zap.Bool("on", on))
	return nil
}

// ConnectMQTT connects to the configured broker.
func ConnectMQTT(cfg *config.Config, logger *zap.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
	}
	if cfg.MQTTPassword != "" {
		opts.SetPassword(cfg.MQTTPassword)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	logger.Info("mqtt connected", zap.String("broker", cfg.MQTTBroker))
	return client, nil
}
