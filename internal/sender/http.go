package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Popie52/offlinesync/internal/model"
)

var ErrNoEndpoint = errors.New("sender: no endpoint configured")

type HTTPConfig struct {
	URL     string
	Timeout time.Duration

	// RateLimit is requests per second; 0 disables limiting.
	RateLimit float64
	RateBurst int

	Breaker BreakerConfig
}

// HTTPSender POSTs each action as JSON. The action id travels as the
// Idempotency-Key header so the remote side can drop replays of a send
// whose response was lost.
type HTTPSender struct {
	cfg     HTTPConfig
	http    *http.Client
	limiter *rate.Limiter
	breaker CircuitBreaker
	logger  *zap.Logger
}

type actionRequest struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Payload   string `json:"payload"`
	CreatedAt int64  `json:"created_at"`
	Attempt   int    `json:"attempt"`
}

func NewHTTPSender(cfg HTTPConfig, logger *zap.Logger) (*HTTPSender, error) {
	if cfg.URL == "" {
		return nil, ErrNoEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &HTTPSender{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: NewCircuitBreaker("offlinesync-sender", cfg.Breaker),
		logger:  logger,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return s, nil
}

func (s *HTTPSender) Send(ctx context.Context, a *model.Action) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("send %s: rate limit: %w: %w", a.ID, ErrUnavailable, err)
		}
	}

	err := s.breaker.Execute(func() error {
		return s.post(ctx, a)
	})
	if err != nil {
		return fmt.Errorf("send %s: %w", a.ID, err)
	}
	return nil
}

func (s *HTTPSender) post(ctx context.Context, a *model.Action) error {
	body, err := json.Marshal(actionRequest{
		ID:        a.ID,
		Kind:      string(a.Kind),
		Payload:   a.Payload,
		CreatedAt: a.CreatedAt,
		Attempt:   a.RetryCount + 1,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", a.ID)

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		s.logger.Debug("remote_rejected_action",
			zap.String("action_id", a.ID),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("remote error: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
