package db

import (
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
)

// NewClickHouseConnection opens the replay audit store.
// DSN e.g. clickhouse://default:@localhost:9000/fintrack?dial_timeout=5s&compress=true
func NewClickHouseConnection(dsn string, opts PoolOpts) (*sqlx.DB, error) {
	return openPool("clickhouse", dsn, opts, 3*time.Second)
}
