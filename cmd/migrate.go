package cmd

import (
	"context"
	"fmt"

	"github.com/jmehdipour/fintrack/internal/app"
	"github.com/jmehdipour/fintrack/internal/config"
	"github.com/jmehdipour/fintrack/internal/remote"
	"github.com/jmehdipour/fintrack/internal/repository"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the local queue and any configured backend tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		ctx := context.Background()

		store := app.NewQueueStore(cfg)
		defer store.Close()
		v, err := store.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("queue store: %w", err)
		}
		fmt.Printf(">> queue %s at schema version %d\n", cfg.Queue.Path, v)

		if cfg.Remote.Kind == config.RemoteMySQL {
			mysqlDB, err := app.OpenMySQL(cfg)
			if err != nil {
				return fmt.Errorf("open mysql: %w", err)
			}
			defer mysqlDB.Close()
			if _, err := mysqlDB.ExecContext(ctx, remote.MySQLSchema); err != nil {
				return fmt.Errorf("mysql schema: %w", err)
			}
			fmt.Println(">> mysql documents table ready")
		}

		if cfg.ClickHouse.DSN != "" {
			chDB, err := app.OpenClickHouse(cfg)
			if err != nil {
				return fmt.Errorf("open clickhouse: %w", err)
			}
			defer chDB.Close()
			if _, err := chDB.ExecContext(ctx, `CREATE DATABASE IF NOT EXISTS fintrack`); err != nil {
				return fmt.Errorf("clickhouse database: %w", err)
			}
			if _, err := chDB.ExecContext(ctx, repository.ReplayLogSchema); err != nil {
				return fmt.Errorf("clickhouse schema: %w", err)
			}
			fmt.Println(">> clickhouse replay_attempts table ready")
		}

		fmt.Println(">> Migration complete")
		return nil
	},
}
