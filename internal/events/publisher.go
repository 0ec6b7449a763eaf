package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/headline-radar/internal/models"
)

// Publisher announces headlines whose derived fields were just written.
type Publisher interface {
	Publish(ctx context.Context, docs []models.Headline) error
	Close() error
}

// Nop drops every event. Used when no topic is configured.
type Nop struct{}

func (Nop) Publish(context.Context, []models.Headline) error { return nil }
func (Nop) Close() error                                      { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes one message per headline, keyed by id so every update of a
// record lands on the same partition.
type Kafka struct {
	w   messageWriter
	now func() time.Time
}

// NewKafka creates a publisher writing to topic on the given brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     brokers,
		Topic:       topic,
		Balancer:    &kafka.Hash{},
		MaxAttempts: 3,
	})
	return &Kafka{w: w, now: time.Now}
}

// Publish writes all docs in one WriteMessages call.
func (k *Kafka) Publish(ctx context.Context, docs []models.Headline) error {
	if len(docs) == 0 {
		return nil
	}

	ts := k.now().UTC()
	msgs := make([]kafka.Message, 0, len(docs))
	for _, doc := range docs {
		payload, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", doc.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(doc.ID),
			Value: payload,
			Time:  ts,
			Headers: []kafka.Header{
				{Key: "sentiment", Value: []byte(doc.Sentiment)},
			},
		})
	}

	if err := k.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish annotation events: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (k *Kafka) Close() error {
	return k.w.Close()
}
