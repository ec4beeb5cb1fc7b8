package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/quake-search-service/internal/config"
	"github.com/couchcryptid/quake-search-service/internal/domain"
)

// DeadLetterWriter republishes messages that failed to transform to the
// dead-letter topic, annotated with the failure.
// It implements pipeline.DeadLetterer.
type DeadLetterWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewDeadLetterWriter creates a Kafka producer for the configured DLQ topic.
func NewDeadLetterWriter(cfg *config.Config, logger *slog.Logger) *DeadLetterWriter {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaDLQTopic,
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &DeadLetterWriter{writer: w, logger: logger}
}

// DeadLetter publishes the original payload unchanged.
func (w *DeadLetterWriter) DeadLetter(ctx context.Context, raw domain.RawEvent, cause error) error {
	if err := w.writer.WriteMessages(ctx, deadLetterMessage(raw, cause, time.Now().UTC())); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	w.logger.Debug("message dead-lettered", "topic", raw.Topic, "offset", raw.Offset)
	return nil
}

func (w *DeadLetterWriter) Close() error {
	return w.writer.Close()
}

// deadLetterMessage copies the source message and records where it came from
// and why it was rejected.
func deadLetterMessage(raw domain.RawEvent, cause error, failedAt time.Time) kafkago.Message {
	headers := make([]kafkago.Header, 0, len(raw.Headers)+5)
	for k, v := range raw.Headers {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	headers = append(headers,
		kafkago.Header{Key: "dlq_error", Value: []byte(cause.Error())},
		kafkago.Header{Key: "dlq_source_topic", Value: []byte(raw.Topic)},
		kafkago.Header{Key: "dlq_source_partition", Value: []byte(strconv.Itoa(raw.Partition))},
		kafkago.Header{Key: "dlq_source_offset", Value: []byte(strconv.FormatInt(raw.Offset, 10))},
		kafkago.Header{Key: "dlq_failed_at", Value: []byte(failedAt.Format(time.RFC3339))},
	)
	return kafkago.Message{
		Key:     raw.Key,
		Value:   raw.Value,
		Headers: headers,
	}
}
