package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nsqio/go-nsq"

	"ridedispatch/internal/domain"
)

type nsqProducer interface {
	Publish(topic string, body []byte) error
	Stop()
}

// NSQPublisher publishes events to an nsqd topic for push notification workers.
type NSQPublisher struct {
	producer nsqProducer
	topic    string
}

// NewNSQPublisher connects a producer to the nsqd at addr.
func NewNSQPublisher(addr, topic string) (*NSQPublisher, error) {
	producer, err := nsq.NewProducer(addr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("create nsq producer: %w", err)
	}
	return &NSQPublisher{producer: producer, topic: topic}, nil
}

func (p *NSQPublisher) Publish(ctx context.Context, event domain.RideEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(NewMessage(event))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.producer.Publish(p.topic, b)
}

func (p *NSQPublisher) Close() error {
	p.producer.Stop()
	return nil
}
