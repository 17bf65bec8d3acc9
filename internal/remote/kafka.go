package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmehdipour/fintrack/internal/model"
)

// Publisher is satisfied by kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// KafkaRemote publishes each operation as an Envelope to
// "<prefix>.<collection>", keyed by record id so a record's writes stay on
// one partition in order.
type KafkaRemote struct {
	pub         Publisher
	topicPrefix string
}

func NewKafkaRemote(pub Publisher, topicPrefix string) *KafkaRemote {
	if topicPrefix == "" {
		topicPrefix = "fintrack"
	}
	return &KafkaRemote{pub: pub, topicPrefix: topicPrefix}
}

var _ Remote = (*KafkaRemote)(nil)

func (r *KafkaRemote) Topic(c model.Collection) string {
	return r.topicPrefix + "." + c.String()
}

func (r *KafkaRemote) Apply(ctx context.Context, op model.QueuedOperation) error {
	if !op.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, op.Type)
	}
	key, err := recordKey(op)
	if err != nil {
		return err
	}
	value, err := json.Marshal(model.NewEnvelope(op))
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := r.pub.Publish(ctx, r.Topic(op.Collection), []byte(key), value); err != nil {
		return fmt.Errorf("publish %s: %w", r.Topic(op.Collection), err)
	}
	return nil
}
