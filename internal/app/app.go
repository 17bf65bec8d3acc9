package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmehdipour/fintrack/internal/config"
	"github.com/jmehdipour/fintrack/internal/connectivity"
	"github.com/jmehdipour/fintrack/internal/db"
	"github.com/jmehdipour/fintrack/internal/kafka"
	"github.com/jmehdipour/fintrack/internal/remote"
	"github.com/jmehdipour/fintrack/internal/repository"
	"github.com/jmehdipour/fintrack/internal/service/queue"
	"github.com/jmehdipour/fintrack/internal/worker"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App holds the wired runtime shared by the serve and worker commands.
type App struct {
	Config  config.Config
	Log     *zap.Logger
	Store   *repository.SQLiteQueueStore
	Switch  *connectivity.Switch
	Probe   *connectivity.Probe // nil without connectivity.probe_url
	Remote  remote.Remote
	Queue   *queue.Service
	Drainer *worker.Drainer
	Replays repository.ReplayLog // nil without clickhouse.dsn
	Redis   *redis.Client        // nil without redis.addr

	closers []func() error
}

func poolOpts(c config.DatabaseConfig) db.PoolOpts {
	return db.PoolOpts{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
		PingTimeout:     c.PingTimeout,
	}
}

// NewQueueStore builds the local store without opening it.
func NewQueueStore(cfg config.Config) *repository.SQLiteQueueStore {
	return repository.NewSQLiteQueueStore(cfg.Queue.Path, db.SQLiteOpts{BusyTimeout: cfg.Queue.BusyTimeout})
}

// Build wires every component from cfg. Optional backends left unconfigured
// stay nil. Call Close when done.
func Build(cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	a.Store = NewQueueStore(cfg)
	a.closers = append(a.closers, a.Store.Close)

	a.Switch = connectivity.NewSwitch(cfg.Connectivity.InitialOnline)
	if cfg.Connectivity.ProbeURL != "" {
		a.Probe = connectivity.NewProbe(cfg.Connectivity.ProbeURL,
			cfg.Connectivity.ProbeInterval, cfg.Connectivity.ProbeTimeout, a.Switch, log.Named("probe"))
	}

	rem, err := a.buildRemote()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Remote = rem

	if cfg.ClickHouse.DSN != "" {
		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse.DSN, poolOpts(cfg.ClickHouse))
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("clickhouse connect: %w", err)
		}
		a.closers = append(a.closers, chDB.Close)
		a.Replays = repository.NewCHReplayLog(chDB)
	}

	rdb, err := db.NewRedisClient(db.RedisOpts{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	if rdb != nil {
		a.Redis = rdb
		a.closers = append(a.closers, rdb.Close)
	}

	a.Queue = queue.New(a.Store, a.Switch, queue.WithLogger(log.Named("queue")))

	d := worker.NewDrainer(a.Store, a.Remote, cfg.Sync.MaxRetries, log.Named("drainer"))
	d.Online = a.Switch
	d.Audit = a.Replays
	d.Notifier = worker.LogNotifier(log.Named("drainer"))
	d.Schedule = cfg.Sync.Schedule
	a.Drainer = d

	return a, nil
}

func (a *App) buildRemote() (remote.Remote, error) {
	cfg := a.Config
	switch cfg.Remote.Kind {
	case config.RemoteHTTP:
		var eps []remote.Endpoint
		for _, e := range cfg.Remote.Endpoints {
			if !e.Enabled {
				continue
			}
			eps = append(eps, remote.NewHTTPRemote(e.Name, e.BaseURL, e.TimeoutMs, e.Breaker.FailThreshold, e.Breaker.OpenForMs))
		}
		if len(eps) == 0 {
			return nil, errors.New("remote.endpoints: no enabled endpoint")
		}
		return remote.NewPool(eps, cfg.Remote.MaxAttempts), nil

	case config.RemoteMySQL:
		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, poolOpts(cfg.MySQL))
		if err != nil {
			return nil, fmt.Errorf("mysql connect: %w", err)
		}
		a.closers = append(a.closers, mysqlDB.Close)
		return remote.NewMySQLRemote(mysqlDB), nil

	case config.RemoteKafka:
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, errors.New("kafka.brokers is required for remote.kind=kafka")
		}
		p := kafka.NewProducerFromConfig(kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			WriteTimeout: cfg.Kafka.WriteTimeout,
			RequiredAcks: cfg.Kafka.RequiredAcks,
		})
		a.closers = append(a.closers, p.Close)
		return remote.NewKafkaRemote(p, cfg.Kafka.TopicPrefix), nil
	}
	return nil, fmt.Errorf("remote.kind: unknown %q", cfg.Remote.Kind)
}

// OpenMySQL opens the configured MySQL pool for maintenance commands.
func OpenMySQL(cfg config.Config) (*sqlx.DB, error) {
	return db.NewMySQLConnection(cfg.MySQL.DSN, poolOpts(cfg.MySQL))
}

// OpenClickHouse opens the configured ClickHouse pool for maintenance commands.
func OpenClickHouse(cfg config.Config) (*sqlx.DB, error) {
	return db.NewClickHouseConnection(cfg.ClickHouse.DSN, poolOpts(cfg.ClickHouse))
}

// Close releases everything Build opened, last opened first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Settle waits briefly for the first probe so startup does not queue writes
// that could go straight through.
func (a *App) Settle(ctx context.Context) {
	if a.Probe != nil {
		a.Probe.Check(ctx)
	}
}

// AssumeOnlineWithoutProbe marks the switch online when no probe is
// configured. Outside serve nothing else can flip it, so a standalone drainer
// would otherwise never run. Reports whether it changed the state.
func (a *App) AssumeOnlineWithoutProbe() bool {
	if a.Probe != nil {
		return false
	}
	return a.Switch.Set(true)
}
