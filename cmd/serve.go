package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/fintrack/internal/app"
	"github.com/jmehdipour/fintrack/internal/config"
	httpSrv "github.com/jmehdipour/fintrack/internal/http"
	"github.com/jmehdipour/fintrack/internal/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server with the background drainer",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
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

		a.Settle(ctx)

		server := httpSrv.NewServer(httpSrv.Deps{
			Queue:        a.Queue,
			Remote:       a.Remote,
			Drainer:      a.Drainer,
			Switch:       a.Switch,
			Replays:      a.Replays,
			Redis:        a.Redis,
			RateLimitRPS: cfg.RateLimit.RPS,
			Log:          log.Named("http"),
		})

		g, gctx := errgroup.WithContext(ctx)

		if a.Probe != nil {
			g.Go(func() error {
				a.Probe.Run(gctx)
				return nil
			})
		}

		reconnect := a.Switch.Subscribe()
		g.Go(func() error {
			return a.Drainer.Run(gctx, reconnect)
		})

		g.Go(func() error {
			if err := server.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}
