package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/fintrack/internal/connectivity"
	"github.com/jmehdipour/fintrack/internal/metrics"
	"github.com/jmehdipour/fintrack/internal/model"
	"github.com/jmehdipour/fintrack/internal/repository"
	"github.com/jmehdipour/fintrack/internal/util"
	"go.uber.org/zap"
)

var ErrInvalidOperation = errors.New("invalid operation")

// Service is the queuing layer handed to the dispatcher: it answers
// IsOnline from the injected provider and turns caller metadata into stored
// QueuedOperations.
type Service struct {
	store  repository.QueueStore
	online connectivity.Provider
	log    *zap.Logger

	now   func() time.Time
	newID func(time.Time) string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(gen func(time.Time) string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New constructs the queue service.
func New(store repository.QueueStore, online connectivity.Provider, opts ...Option) *Service {
	s := &Service{
		store:  store,
		online: online,
		log:    zap.NewNop(),
		now:    time.Now,
		newID:  util.NewAt,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) IsOnline() bool { return s.online.IsOnline() }

// AddToQueue assigns id, timestamp and a zero retry count, then persists the
// operation. It returns the stored record.
func (s *Service) AddToQueue(ctx context.Context, meta model.OperationMeta) (model.QueuedOperation, error) {
	if !meta.Valid() {
		return model.QueuedOperation{}, fmt.Errorf("%w: type=%q collection=%q", ErrInvalidOperation, meta.Type, meta.Collection)
	}

	at := s.now()
	op := model.QueuedOperation{
		ID:         s.newID(at),
		Type:       meta.Type,
		Collection: meta.Collection,
		Data:       meta.Data,
		Timestamp:  at.UnixMilli(),
		RetryCount: 0,
	}

	err := s.store.Add(ctx, op)
	metrics.QueueOpsTotal.WithLabelValues("add", metrics.Result(err)).Inc()
	if err != nil {
		return model.QueuedOperation{}, fmt.Errorf("enqueue %s %s: %w", op.Type, op.Collection, err)
	}

	s.log.Debug("operation queued",
		zap.String("id", op.ID),
		zap.String("type", op.Type.String()),
		zap.String("collection", op.Collection.String()),
		zap.Int64("timestamp", op.Timestamp),
	)
	return op, nil
}

// Store exposes the underlying queue store for listing and maintenance.
func (s *Service) Store() repository.QueueStore { return s.store }
