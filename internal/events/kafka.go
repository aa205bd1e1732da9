package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ridedispatch/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a topic keyed by ride id, so a ride's
// events stay ordered within one partition.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
}

// batchTimeout bounds how long a synchronous write waits for its batch to
// fill. Events are written one at a time after commit, so batches never fill.
const batchTimeout = 5 * time.Millisecond

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, timeout time.Duration) *KafkaPublisher {
	return &KafkaPublisher{writer: newKafkaWriter(brokers, topic), timeout: timeout}
}

// newKafkaWriter flushes every message on its own so a publish returns as soon
// as the broker acknowledges it.
func newKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    1,
		BatchTimeout: batchTimeout,
	}
}

func (k *KafkaPublisher) Publish(ctx context.Context, event domain.RideEvent) error {
	b, err := json.Marshal(NewMessage(event))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if k.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.timeout)
		defer cancel()
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.RideID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
