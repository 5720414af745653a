package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/quietbarn/songplay-etl/internal/config"
	"github.com/quietbarn/songplay-etl/internal/pipeline"
)

// Notifier publishes run summaries to a Kafka topic so downstream consumers
// (catalog refresh, freshness monitors) learn that new table snapshots exist.
// It implements pipeline.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured runs topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaRunsTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger}
}

// NotifyRunComplete publishes one run summary, keyed by run ID.
func (n *Notifier) NotifyRunComplete(ctx context.Context, summary pipeline.RunSummary) error {
	msg, err := mapSummaryToMessage(summary)
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, msg)
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

func mapSummaryToMessage(summary pipeline.RunSummary) (kafkago.Message, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run summary: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(summary.RunID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "completed_at", Value: []byte(summary.CompletedAt.Format(time.RFC3339))},
		},
	}, nil
}
