package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/fintrack/internal/app"
	"github.com/jmehdipour/fintrack/internal/config"
	"github.com/jmehdipour/fintrack/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDrainCmd(cfgPath *string) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Replay the offline queue against the remote",
		Long: "Replays queued operations in timestamp order. With --once a single pass runs " +
			"and the command exits; otherwise it keeps draining on reconnect and on sync.schedule.\n\n" +
			"Connectivity follows connectivity.probe_url. Without a probe the worker treats the " +
			"remote as reachable, since nothing else in this process can switch it online.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := logger.Init(cfg.Log.Level, cfg.Log.Encoding)
			defer func() { _ = log.Sync() }()

			a, err := app.Build(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if once {
				// a one-shot pass is an explicit request to sync now
				if a.Probe != nil && !a.Probe.Check(ctx) {
					return fmt.Errorf("remote unreachable at %s", cfg.Connectivity.ProbeURL)
				}
				rep, err := a.Drainer.Drain(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "replayed=%d failed=%d exhausted=%d remaining=%d\n",
					rep.Replayed, rep.Failed, rep.Exhausted, rep.Remaining)
				return nil
			}

			if a.AssumeOnlineWithoutProbe() {
				log.Info("no connectivity probe configured, treating remote as online")
			}
			reconnect := a.Switch.Subscribe()
			if a.Probe != nil {
				go a.Probe.Run(ctx)
			}
			log.Info("drain worker started",
				zap.String("remote", cfg.Remote.Kind),
				zap.String("schedule", cfg.Sync.Schedule),
				zap.Int("max_retries", cfg.Sync.MaxRetries),
			)
			return a.Drainer.Run(ctx, reconnect)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single drain pass and exit")
	return cmd
}
