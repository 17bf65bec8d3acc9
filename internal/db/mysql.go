package db

import (
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// NewMySQLConnection opens the MySQL remote used by the "mysql" remote kind.
// The DSN should carry parseTime=true.
func NewMySQLConnection(dsn string, opts PoolOpts) (*sqlx.DB, error) {
	return openPool("mysql", dsn, opts, 5*time.Second)
}
