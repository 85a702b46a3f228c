package core

import (
	"go.uber.org/zap"

	"github.com/Popie52/offlinesync/internal/clock"
	"github.com/Popie52/offlinesync/internal/metrics"
)

type Option func(*Engine)

// WithMaxRetry sets how many failed sends an action may accumulate before
// passes skip it. Values below 1 are ignored.
func WithMaxRetry(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetry = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(m metrics.MetricsFn) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithClock sets the clock used for pass timestamps.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}
