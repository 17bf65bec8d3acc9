package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jmehdipour/fintrack/internal/app"
	"github.com/jmehdipour/fintrack/internal/config"
	"github.com/jmehdipour/fintrack/internal/model"
	"github.com/jmehdipour/fintrack/internal/repository"
	"github.com/spf13/cobra"
)

func openStore() (*repository.SQLiteQueueStore, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.NewQueueStore(cfg), nil
}

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or reset the local offline queue",
	}
	cmd.AddCommand(newQueueListCmd(), newQueueSizeCmd(), newQueueClearCmd())
	return cmd
}

func newQueueListCmd() *cobra.Command {
	var (
		collection string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued operations in replay order",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			ctx := context.Background()

			var ops []model.QueuedOperation
			if collection != "" {
				coll, ok := model.ParseCollection(collection)
				if !ok {
					return fmt.Errorf("unknown collection %q", collection)
				}
				ops, err = store.ListByCollection(ctx, coll)
			} else {
				ops, err = store.GetAll(ctx)
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(ops)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tCOLLECTION\tQUEUED AT\tRETRIES\tLAST ERROR")
			for _, op := range ops {
				last := "-"
				if op.LastError != nil {
					last = *op.LastError
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
					op.ID, op.Type, op.Collection,
					time.UnixMilli(op.Timestamp).UTC().Format(time.RFC3339), op.RetryCount, last)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "only list this collection")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newQueueSizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "size",
		Short: "Print the number of queued operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			n, err := store.Size(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newQueueClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every queued operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the queue without --yes")
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Clear(context.Background()); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, ">> queue cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm")
	return cmd
}
