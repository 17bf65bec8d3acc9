package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type Config struct {
	Brokers      []string
	BatchTimeout time.Duration // default 10ms
	WriteTimeout time.Duration // default 10s
	RequiredAcks int           // -1 waits for all replicas, otherwise the leader
}

// Producer is a thin wrapper around segmentio/kafka-go Writer. The topic is
// chosen per message.
type Producer struct {
	w *kafka.Writer
}

func NewProducerFromConfig(c Config) *Producer {
	bt := c.BatchTimeout
	if bt <= 0 {
		bt = 10 * time.Millisecond
	}
	wt := c.WriteTimeout
	if wt <= 0 {
		wt = 10 * time.Second
	}
	acks := kafka.RequireOne
	if c.RequiredAcks < 0 {
		acks = kafka.RequireAll
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(c.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           bt,
		WriteTimeout:           wt,
		RequiredAcks:           acks,
		AllowAutoTopicCreation: true,
	}

	return &Producer{w: w}
}

type Message = kafka.Message

// Publish writes one keyed message to topic and waits for the ack.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	return p.w.WriteMessages(ctx, Message{Topic: topic, Key: key, Value: value})
}

func (p *Producer) Close() error { return p.w.Close() }
