package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/metrics"
)

// KafkaPublisher writes events as JSON to a Kafka topic. Writes are
// batched in the background; delivery failures are logged, never returned.
type KafkaPublisher struct {
	w      *kafka.Writer
	logger zerolog.Logger
}

// NewKafkaPublisher creates a publisher for topic. brokers is a comma
// separated host:port list.
func NewKafkaPublisher(brokers, topic string, logger zerolog.Logger) (*KafkaPublisher, error) {
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("no kafka topic configured")
	}

	p := &KafkaPublisher{
		logger: logger.With().Str("component", "events").Str("topic", topic).Logger(),
	}
	p.w = &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion:             p.completed,
	}
	return p, nil
}

// Publish queues the event and returns without waiting for the broker.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := encode(e)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, msg)
}

// completed runs on the writer's goroutine once a batch is settled.
func (p *KafkaPublisher) completed(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	metrics.EmitFailures.WithLabelValues("events").Add(float64(len(messages)))
	for _, m := range messages {
		p.logger.Warn().Err(err).
			Str("type", headerValue(m, "type")).
			Str("key", string(m.Key)).
			Msg("event delivery failed")
	}
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

func encode(e Event) (kafka.Message, error) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	return kafka.Message{
		Key:   []byte(e.Key),
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}, nil
}

func headerValue(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
