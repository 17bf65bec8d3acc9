package dispatcher

import (
	"context"

	"github.com/jmehdipour/fintrack/internal/metrics"
	"github.com/jmehdipour/fintrack/internal/model"
)

// Capability is what the dispatcher needs from the queuing layer.
type Capability interface {
	IsOnline() bool
	AddToQueue(ctx context.Context, meta model.OperationMeta) (model.QueuedOperation, error)
}

// Execute routes one write. Online, op runs once and its result and error
// are returned untouched; a failing op is not queued. Offline, meta is queued
// and op is never called; the zero T is returned with queued=true.
func Execute[T any](ctx context.Context, c Capability, op func(context.Context) (T, error), meta model.OperationMeta) (result T, queued bool, err error) {
	if c.IsOnline() {
		metrics.DispatchTotal.WithLabelValues("direct", meta.Collection.String()).Inc()
		result, err = op(ctx)
		return result, false, err
	}

	metrics.DispatchTotal.WithLabelValues("queued", meta.Collection.String()).Inc()
	_, err = c.AddToQueue(ctx, meta)
	return result, true, err
}
