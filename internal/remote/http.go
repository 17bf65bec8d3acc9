package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jmehdipour/fintrack/internal/model"
)

// HTTPRemote applies operations through a REST backend:
// POST /{collection}, PUT /{collection}/{id}, DELETE /{collection}/{id}.
type HTTPRemote struct {
	name    string
	baseURL string
	client  *http.Client
	br      *MicroBreaker
}

func NewHTTPRemote(name, baseURL string, timeoutMs, failThreshold, openForMs int) *HTTPRemote {
	if timeoutMs <= 0 {
		timeoutMs = 3000
	}

	if failThreshold <= 0 {
		failThreshold = 3
	}

	if openForMs <= 0 {
		openForMs = 15000
	}

	return &HTTPRemote{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:      NewMicroBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

var _ Endpoint = (*HTTPRemote)(nil)

func (r *HTTPRemote) Name() string    { return r.name }
func (r *HTTPRemote) Ready() bool     { return r.br.Ready() }
func (r *HTTPRemote) Breaker() string { return r.br.State() }

func (r *HTTPRemote) Apply(ctx context.Context, op model.QueuedOperation) error {
	method, path, err := route(op)
	if err != nil {
		return err
	}

	if !r.br.TryAcquire() {
		return fmt.Errorf("remote=%s: %w", r.name, ErrBreakerOpen)
	}

	if err := r.do(ctx, method, path, op); err != nil {
		r.br.OnFailure()
		return err
	}

	r.br.OnSuccess()

	return nil
}

func route(op model.QueuedOperation) (string, string, error) {
	base := "/" + url.PathEscape(op.Collection.String())
	switch op.Type {
	case model.OpCreate:
		return http.MethodPost, base, nil
	case model.OpUpdate, model.OpDelete:
		id, err := recordKey(op)
		if err != nil {
			return "", "", err
		}
		method := http.MethodPut
		if op.Type == model.OpDelete {
			method = http.MethodDelete
		}
		return method, base + "/" + url.PathEscape(id), nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedType, op.Type)
	}
}

func (r *HTTPRemote) do(ctx context.Context, method, path string, op model.QueuedOperation) error {
	b, err := json.Marshal(model.NewEnvelope(op))
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	// replays are at-least-once; the backend dedupes on this key
	req.Header.Set("Idempotency-Key", op.ID)

	res, err := r.client.Do(req)
	if err != nil {
		return err
	}

	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("remote=%s %s %s status=%d", r.name, method, path, res.StatusCode)
	}

	return nil
}
