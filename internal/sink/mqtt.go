package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"vigil/internal/config"
	"vigil/internal/model"
)

// mqttSink publishes records to per-stream MQTT topics for edge
// integrations (dashboards, local automations).
type mqttSink struct {
	client      mqtt.Client
	statsTopic  string
	alertsTopic string
	logger      *slog.Logger
}

func NewMQTTSink(cfg config.MQTTConfig, logger *slog.Logger) (Sink, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}
	logger.Info("mqtt sink enabled", "broker", cfg.BrokerURL, "stats_topic", cfg.StatsTopic, "alerts_topic", cfg.AlertsTopic)
	return &mqttSink{
		client:      client,
		statsTopic:  cfg.StatsTopic,
		alertsTopic: cfg.AlertsTopic,
		logger:      logger,
	}, nil
}

func (s *mqttSink) RecordStat(ctx context.Context, stat model.StreamStat) {
	if s.statsTopic == "" {
		return
	}
	s.publish(s.statsTopic+"/"+stat.StreamName, stat)
}

func (s *mqttSink) RecordAlert(ctx context.Context, alert model.Alert) {
	if s.alertsTopic == "" {
		return
	}
	s.publish(s.alertsTopic+"/"+alert.StreamName, alert)
}

func (s *mqttSink) publish(topic string, record any) {
	payload, err := json.Marshal(record)
	if err != nil {
		s.logger.Warn("mqtt marshal failed", "topic", topic, "err", err)
		return
	}
	token := s.client.Publish(topic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		s.logger.Warn("mqtt publish failed", "topic", topic, "err", token.Error())
	}
}
