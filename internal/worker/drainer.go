package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmehdipour/fintrack/internal/connectivity"
	"github.com/jmehdipour/fintrack/internal/metrics"
	"github.com/jmehdipour/fintrack/internal/model"
	"github.com/jmehdipour/fintrack/internal/remote"
	"github.com/jmehdipour/fintrack/internal/repository"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Notifier is told about operations that reached the retry ceiling and will
// not be replayed again.
type Notifier interface {
	Exhausted(ctx context.Context, op model.QueuedOperation)
}

type NotifierFunc func(ctx context.Context, op model.QueuedOperation)

func (f NotifierFunc) Exhausted(ctx context.Context, op model.QueuedOperation) { f(ctx, op) }

// Report summarises one drain pass.
type Report struct {
	Attempted int           `json:"attempted"`
	Replayed  int           `json:"replayed"`
	Failed    int           `json:"failed"`
	Exhausted int           `json:"exhausted"`
	Remaining int           `json:"remaining"`
	Duration  time.Duration `json:"duration"`
}

// Drainer replays queued operations against the remote in timestamp order:
// - success removes the entry,
// - failure bumps RetryCount, records LastError and moves on,
// - the failure that reaches MaxRetries is surfaced once through the Notifier,
//   after which the entry is skipped.
type Drainer struct {
	// Dependencies
	Store    repository.QueueStore
	Remote   remote.Remote
	Online   connectivity.Provider // optional; nil means always online
	Audit    repository.ReplayLog  // optional
	Notifier Notifier              // optional
	Log      *zap.Logger

	// Behavior
	MaxRetries int    // 0 disables the ceiling
	Schedule   string // optional cron spec for periodic drains, e.g. "@every 30s"

	group singleflight.Group
}

// NewDrainer builds a drainer with sane defaults.
func NewDrainer(store repository.QueueStore, rem remote.Remote, maxRetries int, log *zap.Logger) *Drainer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Drainer{
		Store:      store,
		Remote:     rem,
		MaxRetries: maxRetries,
		Log:        log,
	}
}

func (d *Drainer) exhausted(op model.QueuedOperation) bool {
	return d.MaxRetries > 0 && op.RetryCount >= d.MaxRetries
}

// Drain replays the whole queue once. Concurrent callers share a single pass.
func (d *Drainer) Drain(ctx context.Context) (Report, error) {
	v, err, shared := d.group.Do("drain", func() (any, error) {
		return d.drain(ctx)
	})
	if shared {
		d.Log.Debug("drain coalesced with running pass")
	}
	rep, _ := v.(Report)
	return rep, err
}

func (d *Drainer) drain(ctx context.Context) (Report, error) {
	start := time.Now()
	var rep Report
	defer func() {
		rep.Duration = time.Since(start)
		metrics.DrainDuration.Observe(rep.Duration.Seconds())
	}()

	ops, err := d.Store.GetAll(ctx)
	if err != nil {
		return rep, fmt.Errorf("read queue: %w", err)
	}
	sortForReplay(ops)

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		// already reported when the ceiling was reached
		if d.exhausted(op) {
			rep.Exhausted++
			continue
		}

		rep.Attempted++
		if err := d.replayOne(ctx, op); err != nil {
			if isStoreError(err) {
				return rep, err
			}
			rep.Failed++
			continue
		}
		rep.Replayed++
	}

	if n, err := d.Store.Size(ctx); err == nil {
		rep.Remaining = n
		metrics.QueueDepth.Set(float64(n))
	}

	d.Log.Info("drain finished",
		zap.Int("attempted", rep.Attempted),
		zap.Int("replayed", rep.Replayed),
		zap.Int("failed", rep.Failed),
		zap.Int("exhausted", rep.Exhausted),
		zap.Int("remaining", rep.Remaining),
	)
	return rep, nil
}

type storeError struct{ err error }

func (e storeError) Error() string { return e.err.Error() }
func (e storeError) Unwrap() error { return e.err }

func isStoreError(err error) bool {
	var se storeError
	return errors.As(err, &se)
}

// replayOne applies op. A remote failure is recorded on the entry and
// returned; a store failure is wrapped in storeError so the pass stops.
func (d *Drainer) replayOne(ctx context.Context, op model.QueuedOperation) error {
	rerr := d.Remote.Apply(ctx, op)
	if rerr == nil {
		if err := d.Store.Remove(ctx, op.ID); err != nil {
			metrics.QueueOpsTotal.WithLabelValues("remove", "error").Inc()
			return storeError{fmt.Errorf("remove replayed %s: %w", op.ID, err)}
		}
		metrics.QueueOpsTotal.WithLabelValues("remove", "ok").Inc()
		metrics.ReplaysTotal.WithLabelValues(model.ReplaySucceeded.String(), op.Collection.String()).Inc()
		d.audit(ctx, op, model.ReplaySucceeded, op.RetryCount+1, "")
		return nil
	}

	msg := rerr.Error()
	op.RetryCount++
	op.LastError = &msg
	if err := d.Store.Update(ctx, op); err != nil {
		metrics.QueueOpsTotal.WithLabelValues("update", "error").Inc()
		return storeError{fmt.Errorf("record retry for %s: %w", op.ID, err)}
	}
	metrics.QueueOpsTotal.WithLabelValues("update", "ok").Inc()
	metrics.ReplaysTotal.WithLabelValues(model.ReplayFailed.String(), op.Collection.String()).Inc()
	d.audit(ctx, op, model.ReplayFailed, op.RetryCount, msg)

	d.Log.Warn("replay failed",
		zap.String("id", op.ID),
		zap.String("collection", op.Collection.String()),
		zap.Int("retry_count", op.RetryCount),
		zap.Error(rerr),
	)

	if d.MaxRetries > 0 && op.RetryCount == d.MaxRetries {
		metrics.ReplaysTotal.WithLabelValues(model.ReplayExhausted.String(), op.Collection.String()).Inc()
		d.audit(ctx, op, model.ReplayExhausted, op.RetryCount, msg)
		if d.Notifier != nil {
			d.Notifier.Exhausted(ctx, op)
		}
	}
	return rerr
}

func (d *Drainer) audit(ctx context.Context, op model.QueuedOperation, outcome model.ReplayOutcome, attempt int, msg string) {
	if d.Audit == nil {
		return
	}
	err := d.Audit.Record(ctx, model.ReplayAttempt{
		OperationID: op.ID,
		Collection:  op.Collection,
		Type:        op.Type,
		Outcome:     outcome,
		Attempt:     attempt,
		Error:       msg,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		d.Log.Warn("replay audit failed", zap.String("id", op.ID), zap.Error(err))
	}
}

// Exhausted lists entries at or over the retry ceiling, oldest first.
func (d *Drainer) Exhausted(ctx context.Context) ([]model.QueuedOperation, error) {
	ops, err := d.Store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.QueuedOperation, 0)
	for _, op := range ops {
		if d.exhausted(op) {
			out = append(out, op)
		}
	}
	sortForReplay(out)
	return out, nil
}

// sortForReplay orders by timestamp; ids break ties so equal timestamps
// replay in enqueue order.
func sortForReplay(ops []model.QueuedOperation) {
	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].Timestamp != ops[j].Timestamp {
			return ops[i].Timestamp < ops[j].Timestamp
		}
		return ops[i].ID < ops[j].ID
	})
}

func (d *Drainer) online() bool {
	return d.Online == nil || d.Online.IsOnline()
}

// Run drains once at start if online, then on every reconnect signal and on
// Schedule ticks while online. It blocks until ctx is cancelled.
func (d *Drainer) Run(ctx context.Context, reconnect <-chan struct{}) error {
	var sched *cron.Cron
	if d.Schedule != "" {
		sched = cron.New()
		if _, err := sched.AddFunc(d.Schedule, func() {
			if d.online() {
				d.drainAndLog(ctx, "schedule")
			}
		}); err != nil {
			return fmt.Errorf("drain schedule %q: %w", d.Schedule, err)
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
	}

	if d.online() {
		d.drainAndLog(ctx, "start")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-reconnect:
			if !ok {
				reconnect = nil
				continue
			}
			d.drainAndLog(ctx, "reconnect")
		}
	}
}

func (d *Drainer) drainAndLog(ctx context.Context, trigger string) {
	if _, err := d.Drain(ctx); err != nil && ctx.Err() == nil {
		d.Log.Error("drain failed", zap.String("trigger", trigger), zap.Error(err))
	}
}
