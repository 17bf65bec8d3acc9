package repository

import (
	"context"
	"time"

	"github.com/jmehdipour/fintrack/internal/model"
	"github.com/jmoiron/sqlx"
)

// ReplayLog records every replay attempt for later reporting.
type ReplayLog interface {
	Record(ctx context.Context, a model.ReplayAttempt) error
	List(ctx context.Context, f ReplayFilter) ([]model.ReplayAttempt, error)
}

type ReplayFilter struct {
	Collection  model.Collection    // optional
	Outcome     model.ReplayOutcome // optional
	OperationID string              // optional
	Limit       int
	Offset      int
}

// ReplayLogSchema is applied by the migrate command.
const ReplayLogSchema = `
CREATE TABLE IF NOT EXISTS fintrack.replay_attempts (
    operation_id String,
    collection   LowCardinality(String),
    type         LowCardinality(String),
    outcome      LowCardinality(String),
    attempt      UInt32,
    error        String,
    created_at   DateTime64(3)
) ENGINE = MergeTree
ORDER BY (collection, created_at, operation_id)
`

type chReplayLog struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHReplayLog(ch *sqlx.DB) ReplayLog {
	return &chReplayLog{ch: ch}
}

func (r *chReplayLog) Record(ctx context.Context, a model.ReplayAttempt) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := r.ch.ExecContext(ctx, `
		INSERT INTO fintrack.replay_attempts
		    (operation_id, collection, type, outcome, attempt, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.OperationID, a.Collection.String(), a.Type.String(), a.Outcome.String(), uint32(a.Attempt), a.Error, a.CreatedAt)
	return err
}

func (r *chReplayLog) List(ctx context.Context, f ReplayFilter) ([]model.ReplayAttempt, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := `
		SELECT operation_id, collection, type, outcome, toInt64(attempt) AS attempt, error, created_at
		FROM fintrack.replay_attempts
		WHERE 1 = 1
	`
	var args []any

	if f.Collection != "" {
		q += " AND collection = ?"
		args = append(args, f.Collection.String())
	}
	if f.Outcome != "" {
		q += " AND outcome = ?"
		args = append(args, f.Outcome.String())
	}
	if f.OperationID != "" {
		q += " AND operation_id = ?"
		args = append(args, f.OperationID)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	var rows []model.ReplayAttempt
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
