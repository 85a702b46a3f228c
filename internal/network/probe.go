package network

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Probe decides connectivity by polling an HTTP endpoint. Any response
// below 500 counts as online.
type Probe struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *zap.Logger

	mu     sync.Mutex
	online bool
	subs   subscribers
}

func NewProbe(url string, interval, timeout time.Duration, logger *zap.Logger) *Probe {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Probe{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// CurrentState probes once and records the result without notifying.
func (p *Probe) CurrentState(ctx context.Context) bool {
	online := p.check(ctx)

	p.mu.Lock()
	p.online = online
	p.mu.Unlock()
	return online
}

func (p *Probe) Subscribe(fn func(online bool)) func() {
	return p.subs.add(fn)
}

// Run polls until ctx is done.
func (p *Probe) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Probe) poll(ctx context.Context) {
	online := p.check(ctx)

	p.mu.Lock()
	changed := p.online != online
	p.online = online
	p.mu.Unlock()

	if !changed {
		return
	}

	p.logger.Info("network_state_changed",
		zap.Bool("online", online),
		zap.String("probe_url", p.url),
	)
	p.subs.notify(online)
}

func (p *Probe) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("network_probe_failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode < http.StatusInternalServerError
}
