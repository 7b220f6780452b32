// Package kafka publishes recorded batch events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"freshcore/internal/core"
	"freshcore/pkg/domain"
)

var _ core.EventPublisher = (*Publisher)(nil)

// DefaultTopic receives batch events when no topic is configured.
const DefaultTopic = "batch-events"

const (
	headerEventType   = "event-type"
	headerContentType = "content-type"
	contentTypeJSON   = "application/json"
	clientID          = "freshcore"
)

// MessageWriter is the producer surface the publisher writes through.
// *otelkafka.Writer satisfies it.
type MessageWriter interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// Config configures the underlying kafka.Writer.
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	BatchSize    int
}

// Publisher writes each event as one JSON message keyed by batch id, so all
// events of a batch land on the same partition in order.
type Publisher struct {
	writer MessageWriter
}

// NewPublisher builds a traced kafka.Writer for cfg. Spans and trace context
// headers come from the global OpenTelemetry provider and propagator.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker required")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}
	base := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		BatchSize:    cfg.BatchSize,
		RequiredAcks: kafka.RequireAll,
	}
	w, err := otelkafka.NewWriter(base,
		otelkafka.WithTracerProvider(otel.GetTracerProvider()),
		otelkafka.WithPropagator(otel.GetTextMapPropagator()),
		otelkafka.WithAttributes([]attribute.KeyValue{
			semconv.MessagingDestinationNameKey.String(topic),
			attribute.String("messaging.kafka.client_id", clientID),
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: traced writer: %w", err)
	}
	return NewPublisherWithWriter(w), nil
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(w MessageWriter) *Publisher {
	return &Publisher{writer: w}
}

// Publish implements core.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, event domain.BatchEvent) error {
	msg, err := encode(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessage(ctx, msg); err != nil {
		return fmt.Errorf("publish batch event %s: %w", event.BatchID, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func encode(event domain.BatchEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode batch event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.BatchID.String()),
		Value: value,
		Time:  event.EventDate,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(event.EventType)},
			{Key: headerContentType, Value: []byte(contentTypeJSON)},
		},
	}, nil
}
