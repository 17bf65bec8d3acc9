package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmehdipour/fintrack/internal/db"
	"github.com/jmehdipour/fintrack/internal/model"
	"github.com/jmoiron/sqlx"
	sqlite "modernc.org/sqlite"
)

var (
	ErrStoreUnavailable = errors.New("queue store unavailable")
	ErrDuplicateKey     = errors.New("duplicate operation id")
)

// QueueStore persists pending operations until they are replayed.
type QueueStore interface {
	Add(ctx context.Context, op model.QueuedOperation) error
	GetAll(ctx context.Context) ([]model.QueuedOperation, error)
	ListByCollection(ctx context.Context, c model.Collection) ([]model.QueuedOperation, error)
	Remove(ctx context.Context, id string) error
	RemoveMany(ctx context.Context, ids []string) error
	Update(ctx context.Context, op model.QueuedOperation) error
	Clear(ctx context.Context) error
	Size(ctx context.Context) (int, error)
}

// SchemaVersion is stored in PRAGMA user_version.
const SchemaVersion = len(migrations)

// migrations[i] upgrades a database from user_version i to i+1.
var migrations = [...]string{
	`
CREATE TABLE IF NOT EXISTS offline_queue (
  id          TEXT PRIMARY KEY,
  type        TEXT NOT NULL,
  collection  TEXT NOT NULL,
  data        BLOB,
  timestamp   INTEGER NOT NULL,
  retry_count INTEGER NOT NULL DEFAULT 0,
  last_error  TEXT
);
CREATE INDEX IF NOT EXISTS idx_offline_queue_timestamp ON offline_queue(timestamp);
CREATE INDEX IF NOT EXISTS idx_offline_queue_collection ON offline_queue(collection);
`,
}

type operationRow struct {
	ID         string         `db:"id"`
	Type       string         `db:"type"`
	Collection string         `db:"collection"`
	Data       []byte         `db:"data"`
	Timestamp  int64          `db:"timestamp"`
	RetryCount int            `db:"retry_count"`
	LastError  sql.NullString `db:"last_error"`
}

func (r operationRow) toModel() model.QueuedOperation {
	op := model.QueuedOperation{
		ID:         r.ID,
		Type:       model.OperationType(r.Type),
		Collection: model.Collection(r.Collection),
		Data:       r.Data,
		Timestamp:  r.Timestamp,
		RetryCount: r.RetryCount,
	}
	if r.LastError.Valid {
		s := r.LastError.String
		op.LastError = &s
	}
	return op
}

func lastErrorArg(op model.QueuedOperation) any {
	if op.LastError == nil {
		return nil
	}
	return *op.LastError
}

// dataArg keeps an empty payload NULL so it reads back as nil.
func dataArg(op model.QueuedOperation) any {
	if op.Data == nil {
		return nil
	}
	return []byte(op.Data)
}

// SQLiteQueueStore is a QueueStore backed by a local SQLite file.
// The database is opened and migrated on first use.
type SQLiteQueueStore struct {
	path string
	opts db.SQLiteOpts

	mu sync.Mutex
	db *sqlx.DB
}

func NewSQLiteQueueStore(path string, opts db.SQLiteOpts) *SQLiteQueueStore {
	return &SQLiteQueueStore{path: path, opts: opts}
}

var _ QueueStore = (*SQLiteQueueStore)(nil)

// conn opens the database lazily. A failed open is not cached.
func (s *SQLiteQueueStore) conn(ctx context.Context) (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}

	d, err := db.NewSQLiteConnection(s.path, s.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStoreUnavailable, s.path, err)
	}
	if err := migrate(ctx, d); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrStoreUnavailable, err)
	}

	s.db = d
	return d, nil
}

// Migrate opens the store and brings the schema to SchemaVersion.
func (s *SQLiteQueueStore) Migrate(ctx context.Context) (int, error) {
	d, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var v int
	if err := d.GetContext(ctx, &v, `PRAGMA user_version`); err != nil {
		return 0, err
	}
	return v, nil
}

func migrate(ctx context.Context, d *sqlx.DB) error {
	var current int
	if err := d.GetContext(ctx, &current, `PRAGMA user_version`); err != nil {
		return err
	}
	if current > SchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported %d", current, SchemaVersion)
	}

	for v := current; v < SchemaVersion; v++ {
		tx, err := d.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		// PRAGMA does not take bind parameters
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, v+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("set user_version %d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteQueueStore) Add(ctx context.Context, op model.QueuedOperation) error {
	d, err := s.conn(ctx)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO offline_queue
		    (id, type, collection, data, timestamp, retry_count, last_error)
		VALUES
		    (?,  ?,    ?,          ?,    ?,         ?,           ?)
	`
	_, err = d.ExecContext(ctx, q,
		op.ID, op.Type.String(), op.Collection.String(), dataArg(op), op.Timestamp, op.RetryCount, lastErrorArg(op),
	)
	if isDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, op.ID)
	}
	return err
}

// GetAll returns every operation in replay order (timestamp, then id).
func (s *SQLiteQueueStore) GetAll(ctx context.Context) ([]model.QueuedOperation, error) {
	d, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []operationRow
	if err := d.SelectContext(ctx, &rows, `
		SELECT id, type, collection, data, timestamp, retry_count, last_error
		  FROM offline_queue
		 ORDER BY timestamp, id
	`); err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

// ListByCollection returns the collection's operations in timestamp order.
func (s *SQLiteQueueStore) ListByCollection(ctx context.Context, c model.Collection) ([]model.QueuedOperation, error) {
	d, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []operationRow
	if err := d.SelectContext(ctx, &rows, `
		SELECT id, type, collection, data, timestamp, retry_count, last_error
		  FROM offline_queue
		 WHERE collection = ?
		 ORDER BY timestamp, id
	`, c.String()); err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

func (s *SQLiteQueueStore) Remove(ctx context.Context, id string) error {
	d, err := s.conn(ctx)
	if err != nil {
		return err
	}
	_, err = d.ExecContext(ctx, `DELETE FROM offline_queue WHERE id = ?`, id)
	return err
}

// RemoveMany deletes ids in one transaction; any failure rolls back the batch.
func (s *SQLiteQueueStore) RemoveMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	d, err := s.conn(ctx)
	if err != nil {
		return err
	}

	query, args, err := sqlx.In(`DELETE FROM offline_queue WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	query = d.Rebind(query)

	tx, err := d.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("remove %d operations: %w", len(ids), err)
	}
	return tx.Commit()
}

// Update inserts op or replaces every field of the record with the same id.
func (s *SQLiteQueueStore) Update(ctx context.Context, op model.QueuedOperation) error {
	d, err := s.conn(ctx)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO offline_queue
		    (id, type, collection, data, timestamp, retry_count, last_error)
		VALUES
		    (?,  ?,    ?,          ?,    ?,         ?,           ?)
		ON CONFLICT(id) DO UPDATE SET
		    type        = excluded.type,
		    collection  = excluded.collection,
		    data        = excluded.data,
		    timestamp   = excluded.timestamp,
		    retry_count = excluded.retry_count,
		    last_error  = excluded.last_error
	`
	_, err = d.ExecContext(ctx, q,
		op.ID, op.Type.String(), op.Collection.String(), dataArg(op), op.Timestamp, op.RetryCount, lastErrorArg(op),
	)
	return err
}

func (s *SQLiteQueueStore) Clear(ctx context.Context) error {
	d, err := s.conn(ctx)
	if err != nil {
		return err
	}
	_, err = d.ExecContext(ctx, `DELETE FROM offline_queue`)
	return err
}

func (s *SQLiteQueueStore) Size(ctx context.Context) (int, error) {
	d, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := d.GetContext(ctx, &n, `SELECT COUNT(*) FROM offline_queue`); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteQueueStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func toModels(rows []operationRow) []model.QueuedOperation {
	out := make([]model.QueuedOperation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out
}

// isDuplicateKeyError matches only a primary key clash; other constraint
// failures pass through unchanged.
func isDuplicateKeyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	const sqliteConstraintPrimaryKey = 1555 // SQLITE_CONSTRAINT | 6<<8
	return sqliteErr.Code() == sqliteConstraintPrimaryKey
}
