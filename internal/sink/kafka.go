package sink

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"vigil/internal/config"
	"vigil/internal/model"
)

// kafkaSink publishes stat and alert records as JSON messages keyed by
// stream name, so downstream consumers keep per-stream ordering.
type kafkaSink struct {
	writer      *kafka.Writer
	statsTopic  string
	alertsTopic string
	logger      *slog.Logger
}

func NewKafkaSink(cfg config.KafkaConfig, logger *slog.Logger) Sink {
	if !cfg.Enabled {
		return nil
	}
	logger.Info("kafka sink enabled", "brokers", cfg.Brokers, "stats_topic", cfg.StatsTopic, "alerts_topic", cfg.AlertsTopic)
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Balancer: &kafka.Hash{},
	}
	return &kafkaSink{
		writer:      writer,
		statsTopic:  cfg.StatsTopic,
		alertsTopic: cfg.AlertsTopic,
		logger:      logger,
	}
}

func (s *kafkaSink) RecordStat(ctx context.Context, stat model.StreamStat) {
	if s.statsTopic == "" {
		return
	}
	s.publish(ctx, s.statsTopic, stat.StreamName, stat)
}

func (s *kafkaSink) RecordAlert(ctx context.Context, alert model.Alert) {
	if s.alertsTopic == "" {
		return
	}
	s.publish(ctx, s.alertsTopic, alert.StreamName, alert)
}

func (s *kafkaSink) publish(ctx context.Context, topic, key string, record any) {
	payload, err := json.Marshal(record)
	if err != nil {
		s.logger.Warn("kafka marshal failed", "topic", topic, "err", err)
		return
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Warn("kafka publish failed", "topic", topic, "err", err)
	}
}

func (s *kafkaSink) Close() error {
	return s.writer.Close()
}
