package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/Otuja/bookshop/models"

	"github.com/segmentio/kafka-go"
)

// Publisher publishes settlement outcome events. Implementations must be
// safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event models.PaymentEvent) error
}

// PaymentEventProducer publishes payment events to Kafka
type PaymentEventProducer struct {
	writer *kafka.Writer
	topic  string
}

func NewPaymentEventProducer(brokers []string, topic string) *PaymentEventProducer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Printf("[PaymentEventProducer] initialized topic=%s brokers=%v", topic, brokers)
	return &PaymentEventProducer{writer: w, topic: topic}
}

func (p *PaymentEventProducer) Publish(ctx context.Context, event models.PaymentEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: data,
	}

	return p.writer.WriteMessages(ctx, msg)
}

func (p *PaymentEventProducer) Close() {
	_ = p.writer.Close()
}
