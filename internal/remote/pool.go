package remote

import (
	"context"
	"sync/atomic"

	"github.com/jmehdipour/fintrack/internal/model"
)

// Pool spreads operations round-robin over healthy endpoints, trying up to
// maxAttempts endpoints per operation.
type Pool struct {
	endpoints         []Endpoint
	roundRobinCounter atomic.Uint64
	maxAttempts       int
}

func NewPool(endpoints []Endpoint, maxAttempts int) *Pool {
	if maxAttempts < 1 {
		maxAttempts = 2
	}

	return &Pool{endpoints: endpoints, maxAttempts: maxAttempts}
}

var _ Remote = (*Pool)(nil)

func (p *Pool) selectEndpoint() (Endpoint, error) {
	healthy := make([]Endpoint, 0, len(p.endpoints))
	for _, e := range p.endpoints {
		if e.Ready() {
			healthy = append(healthy, e)
		}
	}

	if len(healthy) == 0 {
		return nil, ErrNoHealthy
	}

	x := p.roundRobinCounter.Add(1)
	idx := int((x - 1) % uint64(len(healthy)))

	return healthy[idx], nil
}

// Apply returns nil on the first success, otherwise the last error seen.
func (p *Pool) Apply(ctx context.Context, op model.QueuedOperation) error {
	var last error
	for i := 0; i < p.maxAttempts; i++ {
		e, err := p.selectEndpoint()
		if err != nil {
			if last == nil {
				last = err
			}
			break
		}
		if err := e.Apply(ctx, op); err == nil {
			return nil
		} else {
			last = err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return last
}

// Ready reports whether any endpoint would accept a request.
func (p *Pool) Ready() bool {
	for _, e := range p.endpoints {
		if e.Ready() {
			return true
		}
	}
	return false
}
