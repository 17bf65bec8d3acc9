package remote

import (
	"context"
	"errors"

	"github.com/jmehdipour/fintrack/internal/model"
)

var (
	ErrNoHealthy       = errors.New("no healthy remotes")
	ErrBreakerOpen     = errors.New("remote circuit open")
	ErrMissingRecordID = errors.New("payload has no record id")
	ErrUnsupportedType = errors.New("unsupported operation type")
)

// Remote applies one operation to the backend.
type Remote interface {
	Apply(ctx context.Context, op model.QueuedOperation) error
}

// Endpoint is a Remote that can report its own health, used by Pool.
type Endpoint interface {
	Remote
	Name() string
	Ready() bool
}

// Func adapts a plain function to Remote.
type Func func(ctx context.Context, op model.QueuedOperation) error

func (f Func) Apply(ctx context.Context, op model.QueuedOperation) error { return f(ctx, op) }

// recordKey is the remote identity of the record op touches. Creates without
// an explicit payload id fall back to the operation id.
func recordKey(op model.QueuedOperation) (string, error) {
	if id := op.RecordID(); id != "" {
		return id, nil
	}
	if op.Type == model.OpCreate {
		return op.ID, nil
	}
	return "", ErrMissingRecordID
}
