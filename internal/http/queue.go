package http

import (
	"errors"
	"net/http"

	"github.com/jmehdipour/fintrack/internal/connectivity"
	"github.com/jmehdipour/fintrack/internal/model"
	"github.com/jmehdipour/fintrack/internal/repository"
	"github.com/jmehdipour/fintrack/internal/service/queue"
	"github.com/jmehdipour/fintrack/internal/worker"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

func storeErrorJSON(c echo.Context, err error) error {
	log.Errorf("queue store: %v", err)
	if errors.Is(err, repository.ErrStoreUnavailable) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
}

// GET /v1/queue?collection=transactions
func listQueueHandler(queueSvc *queue.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var (
			ops []model.QueuedOperation
			err error
		)
		if raw := c.QueryParam("collection"); raw != "" {
			coll, ok := model.ParseCollection(raw)
			if !ok {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid collection"})
			}
			ops, err = queueSvc.Store().ListByCollection(ctx, coll)
		} else {
			ops, err = queueSvc.Store().GetAll(ctx)
		}
		if err != nil {
			return storeErrorJSON(c, err)
		}

		return c.JSON(http.StatusOK, map[string]any{
			"items": ops,
			"count": len(ops),
		})
	}
}

func queueSizeHandler(queueSvc *queue.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		n, err := queueSvc.Store().Size(c.Request().Context())
		if err != nil {
			return storeErrorJSON(c, err)
		}
		return c.JSON(http.StatusOK, map[string]int{"size": n})
	}
}

func clearQueueHandler(queueSvc *queue.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := queueSvc.Store().Clear(c.Request().Context()); err != nil {
			return storeErrorJSON(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func exhaustedHandler(drainer *worker.Drainer) echo.HandlerFunc {
	return func(c echo.Context) error {
		ops, err := drainer.Exhausted(c.Request().Context())
		if err != nil {
			return storeErrorJSON(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"items":       ops,
			"count":       len(ops),
			"max_retries": drainer.MaxRetries,
		})
	}
}

// POST /v1/sync runs a drain pass now. Offline it is refused.
func syncHandler(drainer *worker.Drainer) echo.HandlerFunc {
	return func(c echo.Context) error {
		if drainer.Online != nil && !drainer.Online.IsOnline() {
			return c.JSON(http.StatusConflict, map[string]string{"error": "offline"})
		}
		rep, err := drainer.Drain(c.Request().Context())
		if err != nil {
			return storeErrorJSON(c, err)
		}
		return c.JSON(http.StatusOK, rep)
	}
}

func getConnectivityHandler(queueSvc *queue.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]bool{"online": queueSvc.IsOnline()})
	}
}

type connectivityReq struct {
	Online *bool `json:"online"`
}

// PUT /v1/connectivity {"online": true}
func setConnectivityHandler(sw *connectivity.Switch) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req connectivityReq
		if err := c.Bind(&req); err != nil || req.Online == nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		changed := sw.Set(*req.Online)
		return c.JSON(http.StatusOK, map[string]bool{
			"online":  sw.IsOnline(),
			"changed": changed,
		})
	}
}
