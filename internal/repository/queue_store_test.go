package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jmehdipour/fintrack/internal/db"
	"github.com/jmehdipour/fintrack/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteQueueStore {
	t.Helper()
	s := NewSQLiteQueueStore(filepath.Join(t.TempDir(), "queue.db"), db.SQLiteOpts{})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleOp(id string, ts int64) model.QueuedOperation {
	return model.QueuedOperation{
		ID:         id,
		Type:       model.OpCreate,
		Collection: model.CollectionTransactions,
		Data:       json.RawMessage(fmt.Sprintf(`{"amount":"12.50","memo":"coffee %s"}`, id)),
		Timestamp:  ts,
	}
}

func strptr(s string) *string { return &s }

func TestAddThenGetAllRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	withErr := model.QueuedOperation{
		ID:         "op-2",
		Type:       model.OpDelete,
		Collection: model.CollectionDebts,
		Timestamp:  1_700_000_000_123,
		RetryCount: 3,
		LastError:  strptr("timeout"),
	}
	require.NoError(t, s.Add(ctx, sampleOp("op-1", 1_700_000_000_000)))
	require.NoError(t, s.Add(ctx, withErr))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	byID := map[string]model.QueuedOperation{}
	for _, op := range all {
		byID[op.ID] = op
	}
	assert.Equal(t, sampleOp("op-1", 1_700_000_000_000), byID["op-1"])
	assert.Equal(t, withErr, byID["op-2"])
	assert.Nil(t, byID["op-1"].LastError)
	assert.Nil(t, byID["op-2"].Data)
}

func TestGetAllEmpty(t *testing.T) {
	all, err := newTestStore(t).GetAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestAddDuplicateKeepsOriginal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	orig := sampleOp("dup", 100)
	require.NoError(t, s.Add(ctx, orig))

	clash := sampleOp("dup", 999)
	clash.Collection = model.CollectionAccounts
	err := s.Add(ctx, clash)
	assert.ErrorIs(t, err, ErrDuplicateKey)

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, orig, all[0])
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Add(ctx, sampleOp("a", 1)))
	require.NoError(t, s.Add(ctx, sampleOp("b", 2)))

	require.NoError(t, s.Remove(ctx, "a"))
	// absent id is not an error
	require.NoError(t, s.Remove(ctx, "never-existed"))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].ID)
}

func TestRemoveManyEmptyDoesNotOpenStore(t *testing.T) {
	// the directory does not exist, so any open would fail
	s := NewSQLiteQueueStore(filepath.Join(t.TempDir(), "missing", "queue.db"), db.SQLiteOpts{})
	assert.NoError(t, s.RemoveMany(context.Background(), nil))
	assert.NoError(t, s.RemoveMany(context.Background(), []string{}))
}

func TestRemoveManyRemovesExactlyThose(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, s.Add(ctx, sampleOp(id, int64(i))))
	}

	before, err := s.Size(ctx)
	require.NoError(t, err)

	ids := []string{"b", "d", "e"}
	require.NoError(t, s.RemoveMany(ctx, ids))

	after, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(ids), before-after)

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	var left []string
	for _, op := range all {
		left = append(left, op.ID)
	}
	assert.ElementsMatch(t, []string{"a", "c"}, left)
}

func TestUpdateInsertsOrReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	fresh := sampleOp("u", 10)
	require.NoError(t, s.Update(ctx, fresh))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, fresh, all[0])

	replaced := model.QueuedOperation{
		ID:         "u",
		Type:       model.OpUpdate,
		Collection: model.CollectionBudgets,
		Data:       json.RawMessage(`{"id":"b1","limit":500}`),
		Timestamp:  20,
		RetryCount: 1,
		LastError:  strptr("502"),
	}
	require.NoError(t, s.Update(ctx, replaced))

	all, err = s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, replaced, all[0])
}

func TestClearEmptiesStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for i := 0; i < 7; i++ {
		require.NoError(t, s.Add(ctx, sampleOp(fmt.Sprintf("op-%d", i), int64(i))))
	}
	n, err := s.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, 7, n)

	require.NoError(t, s.Clear(ctx))

	n, err = s.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListByCollectionOrdersByTimestamp(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := sampleOp("a", 300)
	b := sampleOp("b", 100)
	c := sampleOp("c", 200)
	c.Collection = model.CollectionAccounts
	for _, op := range []model.QueuedOperation{a, b, c} {
		require.NoError(t, s.Add(ctx, op))
	}

	got, err := s.ListByCollection(ctx, model.CollectionTransactions)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}

func TestStoreUnavailable(t *testing.T) {
	s := NewSQLiteQueueStore(filepath.Join(t.TempDir(), "missing", "queue.db"), db.SQLiteOpts{})

	err := s.Add(context.Background(), sampleOp("a", 1))
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = s.Size(context.Background())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	s1 := NewSQLiteQueueStore(path, db.SQLiteOpts{})
	require.NoError(t, s1.Add(ctx, sampleOp("kept", 42)))
	require.NoError(t, s1.Close())

	s2 := NewSQLiteQueueStore(path, db.SQLiteOpts{})
	defer s2.Close()

	v, err := s2.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)

	all, err := s2.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, sampleOp("kept", 42), all[0])
}

func TestGetAllReturnsReplayOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, op := range []model.QueuedOperation{
		sampleOp("c", 300), sampleOp("b2", 200), sampleOp("a", 100), sampleOp("b1", 200),
	} {
		require.NoError(t, s.Add(ctx, op))
	}

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, op := range all {
		ids = append(ids, op.ID)
	}
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, ids)
}

func TestOnlyPrimaryKeyClashIsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Add(ctx, sampleOp("dup", 1)))

	d, err := s.conn(ctx)
	require.NoError(t, err)

	_, err = d.ExecContext(ctx,
		`INSERT INTO offline_queue (id, type, collection, timestamp) VALUES ('dup', 'create', 'accounts', 2)`)
	require.Error(t, err)
	assert.True(t, isDuplicateKeyError(err))

	// NOT NULL violation on type
	_, err = d.ExecContext(ctx,
		`INSERT INTO offline_queue (id, type, collection, timestamp) VALUES ('other', NULL, 'accounts', 2)`)
	require.Error(t, err)
	assert.False(t, isDuplicateKeyError(err))
}
