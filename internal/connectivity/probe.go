package connectivity

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Probe drives a Switch from periodic health checks against the remote.
type Probe struct {
	URL      string
	Interval time.Duration
	Client   *http.Client
	Switch   *Switch
	Log      *zap.Logger
}

func NewProbe(url string, interval, timeout time.Duration, sw *Switch, log *zap.Logger) *Probe {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Probe{
		URL:      url,
		Interval: interval,
		Client:   &http.Client{Timeout: timeout},
		Switch:   sw,
		Log:      log,
	}
}

// Check performs one health request and updates the switch.
func (p *Probe) Check(ctx context.Context) bool {
	online := p.healthy(ctx)
	if p.Switch.Set(online) {
		p.Log.Info("connectivity changed", zap.Bool("online", online), zap.String("url", p.URL))
	}
	return online
}

func (p *Probe) healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return false
	}
	res, err := p.Client.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return res.StatusCode/100 == 2
}

// Run checks immediately, then every Interval, until ctx is cancelled.
func (p *Probe) Run(ctx context.Context) {
	tick := time.NewTicker(p.Interval)
	defer tick.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			p.Check(ctx)
		}
	}
}
