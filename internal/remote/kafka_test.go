package remote

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jmehdipour/fintrack/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic      string
	key, value []byte
}

type fakePublisher struct{ msgs []published }

func (f *fakePublisher) Publish(_ context.Context, topic string, key, value []byte) error {
	f.msgs = append(f.msgs, published{topic: topic, key: key, value: value})
	return nil
}

func TestKafkaRemotePublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	r := NewKafkaRemote(pub, "ft")

	op := model.QueuedOperation{
		ID: "01A", Type: model.OpUpdate, Collection: model.CollectionBudgets,
		Data: json.RawMessage(`{"id":"b-7","limit":300}`), Timestamp: 1234,
	}
	require.NoError(t, r.Apply(context.Background(), op))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "ft.budgets", pub.msgs[0].topic)
	assert.Equal(t, "b-7", string(pub.msgs[0].key))

	var env model.Envelope
	require.NoError(t, json.Unmarshal(pub.msgs[0].value, &env))
	assert.Equal(t, "01A", env.ID)
	assert.Equal(t, model.OpUpdate, env.Type)
	assert.Equal(t, int64(1234), env.Timestamp)
}

func TestKafkaRemoteCreateKeysByOperationID(t *testing.T) {
	pub := &fakePublisher{}
	r := NewKafkaRemote(pub, "")

	require.NoError(t, r.Apply(context.Background(), model.QueuedOperation{
		ID: "01Z", Type: model.OpCreate, Collection: model.CollectionTransactions,
	}))
	assert.Equal(t, "fintrack.transactions", pub.msgs[0].topic)
	assert.Equal(t, "01Z", string(pub.msgs[0].key))
}
