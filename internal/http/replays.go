package http

import (
	"net/http"
	"strconv"

	"github.com/jmehdipour/fintrack/internal/model"
	"github.com/jmehdipour/fintrack/internal/repository"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// GET /v1/reports/replays?collection=&outcome=&operation_id=&limit=50&offset=0
func listReplaysHandler(replays repository.ReplayLog) echo.HandlerFunc {
	return func(c echo.Context) error {
		if replays == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "replay audit disabled"})
		}

		var f repository.ReplayFilter
		if raw := c.QueryParam("collection"); raw != "" {
			coll, ok := model.ParseCollection(raw)
			if !ok {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid collection"})
			}
			f.Collection = coll
		}
		if raw := c.QueryParam("outcome"); raw != "" {
			outcome, ok := model.ParseReplayOutcome(raw)
			if !ok {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid outcome"})
			}
			f.Outcome = outcome
		}
		f.OperationID = c.QueryParam("operation_id")

		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		offset, _ := strconv.Atoi(c.QueryParam("offset"))
		if limit <= 0 || limit > 1000 {
			limit = 50
		}
		if offset < 0 {
			offset = 0
		}
		f.Limit, f.Offset = limit, offset

		items, err := replays.List(c.Request().Context(), f)
		if err != nil {
			log.Errorf("replay report failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"items":  items,
			"limit":  limit,
			"offset": offset,
		})
	}
}
