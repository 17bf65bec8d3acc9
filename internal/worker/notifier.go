package worker

import (
	"context"

	"github.com/jmehdipour/fintrack/internal/model"
	"go.uber.org/zap"
)

// LogNotifier reports exhausted operations at error level.
func LogNotifier(log *zap.Logger) Notifier {
	return NotifierFunc(func(_ context.Context, op model.QueuedOperation) {
		var last string
		if op.LastError != nil {
			last = *op.LastError
		}
		log.Error("operation exceeded retry limit",
			zap.String("id", op.ID),
			zap.String("type", op.Type.String()),
			zap.String("collection", op.Collection.String()),
			zap.Int("retry_count", op.RetryCount),
			zap.String("last_error", last),
		)
	})
}
