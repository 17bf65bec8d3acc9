package worker

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/fintrack/internal/connectivity"
	"github.com/jmehdipour/fintrack/internal/db"
	"github.com/jmehdipour/fintrack/internal/model"
	"github.com/jmehdipour/fintrack/internal/remote"
	"github.com/jmehdipour/fintrack/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newStore(t *testing.T) *repository.SQLiteQueueStore {
	t.Helper()
	s := repository.NewSQLiteQueueStore(filepath.Join(t.TempDir(), "queue.db"), db.SQLiteOpts{})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func op(id string, ts int64, c model.Collection) model.QueuedOperation {
	return model.QueuedOperation{
		ID:         id,
		Type:       model.OpCreate,
		Collection: c,
		Data:       json.RawMessage(`{"note":"` + id + `"}`),
		Timestamp:  ts,
	}
}

type recordingRemote struct {
	mu      sync.Mutex
	applied []string
	fail    map[string]error
}

func (r *recordingRemote) Apply(_ context.Context, op model.QueuedOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, op.ID)
	if err := r.fail[op.ID]; err != nil {
		return err
	}
	return nil
}

func (r *recordingRemote) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.applied...)
}

type memAudit struct {
	mu   sync.Mutex
	rows []model.ReplayAttempt
}

func (a *memAudit) Record(_ context.Context, at model.ReplayAttempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rows = append(a.rows, at)
	return nil
}

func (a *memAudit) List(context.Context, repository.ReplayFilter) ([]model.ReplayAttempt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.ReplayAttempt(nil), a.rows...), nil
}

func TestDrainReplaysInTimestampOrder(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Add(ctx, op("a", 100, model.CollectionTransactions)))
	require.NoError(t, store.Add(ctx, op("c", 300, model.CollectionAccounts)))
	require.NoError(t, store.Add(ctx, op("b", 200, model.CollectionBudgets)))

	rem := &recordingRemote{}
	d := NewDrainer(store, rem, 5, zaptest.NewLogger(t))

	rep, err := d.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, rem.order())
	assert.Equal(t, 3, rep.Attempted)
	assert.Equal(t, 3, rep.Replayed)
	assert.Zero(t, rep.Remaining)

	n, err := store.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrainFailureIsRecordedAndDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Add(ctx, op("a", 100, model.CollectionTransactions)))
	require.NoError(t, store.Add(ctx, op("b", 200, model.CollectionTransactions)))
	require.NoError(t, store.Add(ctx, op("c", 300, model.CollectionDebts)))

	rem := &recordingRemote{fail: map[string]error{"b": errors.New("502 bad gateway")}}
	audit := &memAudit{}
	d := NewDrainer(store, rem, 5, zaptest.NewLogger(t))
	d.Audit = audit

	rep, err := d.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, rem.order())
	assert.Equal(t, 2, rep.Replayed)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Remaining)

	left, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "b", left[0].ID)
	assert.Equal(t, 1, left[0].RetryCount)
	require.NotNil(t, left[0].LastError)
	assert.Equal(t, "502 bad gateway", *left[0].LastError)
	assert.Equal(t, int64(200), left[0].Timestamp)

	rows, _ := audit.List(ctx, repository.ReplayFilter{})
	require.Len(t, rows, 3)
	assert.Equal(t, model.ReplayFailed, rows[1].Outcome)
	assert.Equal(t, "502 bad gateway", rows[1].Error)
}

func TestDrainStopsRetryingAtCeiling(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Add(ctx, op("a", 100, model.CollectionTransactions)))

	rem := &recordingRemote{fail: map[string]error{"a": errors.New("rejected")}}
	var notified []model.QueuedOperation
	d := NewDrainer(store, rem, 2, zaptest.NewLogger(t))
	d.Notifier = NotifierFunc(func(_ context.Context, op model.QueuedOperation) {
		notified = append(notified, op)
	})

	var last Report
	for i := 0; i < 4; i++ {
		rep, err := d.Drain(ctx)
		require.NoError(t, err)
		last = rep
	}

	// two real attempts, then skipped
	assert.Len(t, rem.order(), 2)
	assert.Equal(t, 1, last.Exhausted)
	assert.Zero(t, last.Attempted)
	require.Len(t, notified, 1)
	assert.Equal(t, 2, notified[0].RetryCount)
	require.NotNil(t, notified[0].LastError)
	assert.Equal(t, "rejected", *notified[0].LastError)

	ex, err := d.Exhausted(ctx)
	require.NoError(t, err)
	require.Len(t, ex, 1)
	assert.Equal(t, "a", ex[0].ID)
}

func TestDrainWithoutCeilingKeepsRetrying(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Add(ctx, op("a", 100, model.CollectionTransactions)))

	rem := &recordingRemote{fail: map[string]error{"a": errors.New("nope")}}
	d := NewDrainer(store, rem, 0, nil)

	for i := 0; i < 3; i++ {
		_, err := d.Drain(ctx)
		require.NoError(t, err)
	}
	assert.Len(t, rem.order(), 3)

	ex, err := d.Exhausted(ctx)
	require.NoError(t, err)
	assert.Empty(t, ex)
}

func TestDrainSurfacesStoreUnavailable(t *testing.T) {
	store := repository.NewSQLiteQueueStore(filepath.Join(t.TempDir(), "missing", "queue.db"), db.SQLiteOpts{})
	d := NewDrainer(store, &recordingRemote{}, 3, nil)

	_, err := d.Drain(context.Background())
	assert.ErrorIs(t, err, repository.ErrStoreUnavailable)
}

func TestRunDrainsOnReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newStore(t)
	sw := connectivity.NewSwitch(false)
	reconnect := sw.Subscribe()

	applied := make(chan string, 4)
	rem := remote.Func(func(_ context.Context, op model.QueuedOperation) error {
		applied <- op.ID
		return nil
	})
	d := NewDrainer(store, rem, 3, zaptest.NewLogger(t))
	d.Online = sw

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, reconnect) }()

	require.NoError(t, store.Add(context.Background(), op("a", 100, model.CollectionAccounts)))
	sw.Set(true)

	select {
	case id := <-applied:
		assert.Equal(t, "a", id)
	case <-time.After(5 * time.Second):
		t.Fatal("drain did not run after reconnect")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunRejectsBadSchedule(t *testing.T) {
	d := NewDrainer(newStore(t), &recordingRemote{}, 3, nil)
	d.Schedule = "not a schedule"

	err := d.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestExhaustedEntryIsReportedOnce(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Add(ctx, op("a", 100, model.CollectionBudgets)))

	rem := &recordingRemote{fail: map[string]error{"a": errors.New("validation failed")}}
	audit := &memAudit{}
	notified := 0
	d := NewDrainer(store, rem, 1, zaptest.NewLogger(t))
	d.Audit = audit
	d.Notifier = NotifierFunc(func(context.Context, model.QueuedOperation) { notified++ })

	for i := 0; i < 5; i++ {
		_, err := d.Drain(ctx)
		require.NoError(t, err)
	}

	assert.Len(t, rem.order(), 1)
	assert.Equal(t, 1, notified)

	rows, _ := audit.List(ctx, repository.ReplayFilter{})
	require.Len(t, rows, 2)
	assert.Equal(t, model.ReplayFailed, rows[0].Outcome)
	assert.Equal(t, model.ReplayExhausted, rows[1].Outcome)
}
