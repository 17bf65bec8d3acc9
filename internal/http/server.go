package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmehdipour/fintrack/internal/connectivity"
	"github.com/jmehdipour/fintrack/internal/http/middleware"
	"github.com/jmehdipour/fintrack/internal/metrics"
	"github.com/jmehdipour/fintrack/internal/model"
	"github.com/jmehdipour/fintrack/internal/remote"
	"github.com/jmehdipour/fintrack/internal/repository"
	"github.com/jmehdipour/fintrack/internal/service/queue"
	"github.com/jmehdipour/fintrack/internal/worker"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the collaborators the API is built from. Replays and Redis are
// optional.
type Deps struct {
	Queue        *queue.Service
	Remote       remote.Remote
	Drainer      *worker.Drainer
	Switch       *connectivity.Switch
	Replays      repository.ReplayLog
	Redis        *redis.Client
	RateLimitRPS int
	Log          *zap.Logger
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	// echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.WARN)
	e.Use(echoMid.Recover(), requestLogger(d.Log))

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          d.Redis,
		RPS:            d.RateLimitRPS,
		KeyPrefix:      "rl:ip:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", rlMW)

	v1.GET("/queue", listQueueHandler(d.Queue))
	v1.GET("/queue/size", queueSizeHandler(d.Queue))
	v1.GET("/queue/exhausted", exhaustedHandler(d.Drainer))
	v1.DELETE("/queue", clearQueueHandler(d.Queue))
	v1.POST("/sync", syncHandler(d.Drainer))

	v1.GET("/connectivity", getConnectivityHandler(d.Queue))
	v1.PUT("/connectivity", setConnectivityHandler(d.Switch))

	v1.GET("/reports/replays", listReplaysHandler(d.Replays))

	// writes last so the static routes above win
	v1.POST("/:collection", writeHandler(d.Queue, d.Remote, model.OpCreate))
	v1.PUT("/:collection/:id", writeHandler(d.Queue, d.Remote, model.OpUpdate))
	v1.DELETE("/:collection/:id", writeHandler(d.Queue, d.Remote, model.OpDelete))

	return &Server{e: e, log: d.Log}
}

func requestLogger(l *zap.Logger) echo.MiddlewareFunc {
	return echoMid.RequestLoggerWithConfig(echoMid.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v echoMid.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				l.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			l.Info("request", fields...)
			return nil
		},
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
