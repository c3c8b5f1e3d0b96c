// Package kafka publishes tier-change alerts to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/pegelwacht/pegel-monitor/internal/config"
	"github.com/pegelwacht/pegel-monitor/internal/domain"
)

// AlertWriter produces tier-change messages to the alert topic.
// It implements monitor.AlertSink.
type AlertWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewAlertWriter creates a Kafka producer for the configured alert topic.
func NewAlertWriter(cfg *config.Config, logger *slog.Logger) *AlertWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAlertTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &AlertWriter{writer: w, logger: logger}
}

// Name identifies this sink in logs and metrics.
func (w *AlertWriter) Name() string { return "kafka" }

// NotifyTierChange serializes and publishes one tier-change alert.
func (w *AlertWriter) NotifyTierChange(ctx context.Context, change domain.TierChange) error {
	msg, err := serializeToMessage(change)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish tier-change alert: %w", err)
	}
	w.logger.Debug("tier-change alert published",
		"from", change.From.Name, "to", change.To.Name, "level_cm", change.LevelCm)
	return nil
}

func (w *AlertWriter) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a TierChange into a Kafka message. The key is
// the destination tier so consumers can compact per severity.
func serializeToMessage(change domain.TierChange) (kafkago.Message, error) {
	data, err := json.Marshal(change)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize tier change: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(change.To.Name),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "tier", Value: []byte(change.To.Name)},
			{Key: "level_cm", Value: []byte(fmt.Sprintf("%d", change.LevelCm))},
			{Key: "at", Value: []byte(change.At.Format(time.RFC3339))},
		},
	}, nil
}
