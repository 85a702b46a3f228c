package store

import "github.com/Popie52/offlinesync/internal/clock"

type options struct {
	clock clock.Clock
}

type Option func(*options)

// WithClock overrides the clock used for created_at and completed_at.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: clock.NewMonotonic()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
