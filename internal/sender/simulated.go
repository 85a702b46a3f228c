package sender

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/Popie52/offlinesync/internal/model"
)

var ErrSimulatedFailure = errors.New("simulated send failure")

// DefaultDelays mimic a slow upload for large actions.
var DefaultDelays = map[model.Kind]time.Duration{
	model.KindSmall: 500 * time.Millisecond,
	model.KindLarge: 2 * time.Second,
}

// Simulated pretends to deliver an action by waiting a per-kind delay.
// It only looks at the kind, never the payload.
type Simulated struct {
	delays    map[model.Kind]time.Duration
	failEvery int64 // every n-th call fails; 0 never fails
	calls     atomic.Int64
}

func NewSimulated(delays map[model.Kind]time.Duration, failEvery int) *Simulated {
	if delays == nil {
		delays = DefaultDelays
	}
	return &Simulated{
		delays:    delays,
		failEvery: int64(failEvery),
	}
}

func (s *Simulated) Send(ctx context.Context, a *model.Action) error {
	n := s.calls.Add(1)

	select {
	case <-time.After(s.delays[a.Kind]):
	case <-ctx.Done():
		return ctx.Err()
	}

	if s.failEvery > 0 && n%s.failEvery == 0 {
		return ErrSimulatedFailure
	}
	return nil
}

func (s *Simulated) Calls() int64 { return s.calls.Load() }
