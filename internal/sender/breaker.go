package sender

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

type CircuitBreaker interface {
	Execute(fn func() error) error
}

type noopBreaker struct{}

func (noopBreaker) Execute(fn func() error) error { return fn() }

type gobreakerWrapper struct {
	cb *gobreaker.CircuitBreaker
}

func (g *gobreakerWrapper) Execute(fn func() error) error {
	_, err := g.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

type BreakerConfig struct {
	Enabled bool

	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int

	// RecoveryTime is how long the breaker stays open before probing.
	RecoveryTime time.Duration

	// HalfOpenMaxRequests probes are let through while half-open.
	HalfOpenMaxRequests int
}

func NewCircuitBreaker(name string, cfg BreakerConfig) CircuitBreaker {
	if !cfg.Enabled {
		return noopBreaker{}
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(cfg.HalfOpenMaxRequests),
		Timeout:     cfg.RecoveryTime,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	}

	return &gobreakerWrapper{
		cb: gobreaker.NewCircuitBreaker(settings),
	}
}
