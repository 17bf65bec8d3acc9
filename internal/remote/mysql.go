package remote

import (
	"context"
	"fmt"

	"github.com/jmehdipour/fintrack/internal/model"
	"github.com/jmoiron/sqlx"
)

// MySQLSchema is applied by the migrate command when remote.kind is mysql.
const MySQLSchema = `
CREATE TABLE IF NOT EXISTS documents (
    collection   VARCHAR(32)  NOT NULL,
    id           VARCHAR(128) NOT NULL,
    payload      JSON         NULL,
    operation_id CHAR(26)     NOT NULL,
    updated_at   TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
    PRIMARY KEY (collection, id)
) ENGINE=InnoDB
`

// MySQLRemote applies operations straight into a generic documents table.
// Upserts and deletes are idempotent, so replays are safe.
type MySQLRemote struct {
	db *sqlx.DB
}

func NewMySQLRemote(db *sqlx.DB) *MySQLRemote {
	return &MySQLRemote{db: db}
}

var _ Remote = (*MySQLRemote)(nil)

func (r *MySQLRemote) Apply(ctx context.Context, op model.QueuedOperation) error {
	id, err := recordKey(op)
	if err != nil {
		return err
	}

	switch op.Type {
	case model.OpCreate, model.OpUpdate:
		var payload any
		if len(op.Data) > 0 {
			payload = string(op.Data)
		}
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO documents (collection, id, payload, operation_id)
			VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
			    payload      = VALUES(payload),
			    operation_id = VALUES(operation_id)
		`, op.Collection.String(), id, payload, op.ID)
	case model.OpDelete:
		_, err = r.db.ExecContext(ctx,
			`DELETE FROM documents WHERE collection = ? AND id = ?`,
			op.Collection.String(), id,
		)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedType, op.Type)
	}
	if err != nil {
		return fmt.Errorf("mysql %s %s/%s: %w", op.Type, op.Collection, id, err)
	}
	return nil
}
