package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmehdipour/fintrack/internal/dispatcher"
	"github.com/jmehdipour/fintrack/internal/model"
	"github.com/jmehdipour/fintrack/internal/remote"
	"github.com/jmehdipour/fintrack/internal/repository"
	"github.com/jmehdipour/fintrack/internal/service/queue"
	"github.com/jmehdipour/fintrack/internal/util"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

const maxPayloadBytes = 1 << 20

// capture remembers the operation the queue service stored so the handler
// can report its id.
type capture struct {
	*queue.Service
	op model.QueuedOperation
}

func (c *capture) AddToQueue(ctx context.Context, meta model.OperationMeta) (model.QueuedOperation, error) {
	op, err := c.Service.AddToQueue(ctx, meta)
	c.op = op
	return op, err
}

func writeHandler(queueSvc *queue.Service, rem remote.Remote, typ model.OperationType) echo.HandlerFunc {
	return func(c echo.Context) error {
		coll, ok := model.ParseCollection(c.Param("collection"))
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid collection"})
		}

		data, err := readPayload(c.Request().Body, typ)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		if typ != model.OpCreate {
			data, err = withRecordID(data, strings.TrimSpace(c.Param("id")))
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
			}
		}

		meta := model.OperationMeta{Type: typ, Collection: coll, Data: data}

		// online path: the write goes straight to the remote under a fresh id
		direct := func(ctx context.Context) (string, error) {
			now := time.Now()
			op := model.QueuedOperation{
				ID:         util.NewAt(now),
				Type:       meta.Type,
				Collection: meta.Collection,
				Data:       meta.Data,
				Timestamp:  now.UnixMilli(),
			}
			return op.ID, rem.Apply(ctx, op)
		}

		capt := &capture{Service: queueSvc}
		id, queued, err := dispatcher.Execute(c.Request().Context(), capt, direct, meta)
		if err != nil {
			if queued {
				log.Errorf("queue write failed: %v", err)
				if errors.Is(err, repository.ErrStoreUnavailable) {
					return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
				}
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "queue error"})
			}
			log.Warnf("remote write failed: %v", err)
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "remote error", "description": err.Error()})
		}

		resp := map[string]any{
			"queued":       queued,
			"operation_id": id,
			"type":         typ.String(),
			"collection":   coll.String(),
		}
		if rid := (model.QueuedOperation{Data: data}).RecordID(); rid != "" {
			resp["record_id"] = rid
		}
		if queued {
			resp["operation_id"] = capt.op.ID
			resp["timestamp"] = capt.op.Timestamp
			return c.JSON(http.StatusAccepted, resp)
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// readPayload returns the request body as a JSON object. Deletes may omit it.
func readPayload(body io.Reader, typ model.OperationType) (json.RawMessage, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxPayloadBytes+1))
	if err != nil {
		return nil, errors.New("bad request")
	}
	if len(raw) > maxPayloadBytes {
		return nil, errors.New("payload too large")
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		if typ == model.OpDelete {
			return nil, nil
		}
		return nil, errors.New("payload required")
	}

	// null decodes into a nil map without error
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, errors.New("payload must be a JSON object")
	}
	return json.RawMessage(raw), nil
}

// withRecordID makes sure the payload carries the path id. A payload id that
// disagrees with the path is rejected.
func withRecordID(data json.RawMessage, id string) (json.RawMessage, error) {
	if id == "" {
		return nil, errors.New("missing record id")
	}
	obj := map[string]json.RawMessage{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, errors.New("payload must be a JSON object")
		}
	}
	if obj == nil {
		obj = map[string]json.RawMessage{}
	}

	if _, ok := obj["id"]; ok {
		if (model.QueuedOperation{Data: data}).RecordID() != id {
			return nil, errors.New("payload id does not match path")
		}
		return data, nil
	}

	quoted, _ := json.Marshal(id)
	obj["id"] = quoted
	return json.Marshal(obj)
}
