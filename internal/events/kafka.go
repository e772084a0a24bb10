package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a writer for topic. Messages are keyed by policy
// asset so every event for one asset lands on the same partition in order.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteBackoffMin:        100 * time.Millisecond,
		WriteBackoffMax:        time.Second,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// KafkaPublisher writes sale events to a Kafka topic.
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaPublisher creates a KafkaPublisher over writer.
func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Publish implements domain.EventPublisher with a single batched write.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...domain.SaleEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("events: marshal %s: %w", ev.ActivityID.Hex(), err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.PolicyAsset.Hex()),
			Value: value,
			Time:  ev.At,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(ev.Type)},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("events: kafka write %d messages: %w", len(msgs), err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ domain.EventPublisher = (*KafkaPublisher)(nil)
