package core

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Popie52/offlinesync/internal/network"
)

// Scheduler connects an Engine to a network.Monitor and to explicit
// triggers. Triggers coalesce: any number of Trigger calls made while a
// pass runs produce exactly one follow-up pass.
type Scheduler struct {
	engine  *Engine
	monitor network.Monitor
	resync  time.Duration
	logger  *zap.Logger

	trigger chan struct{}
	stopCh  chan struct{}
	done    chan struct{}

	mu          sync.Mutex
	started     bool
	stopped     bool
	unsubscribe func()
}

// NewScheduler builds a scheduler. A positive resync interval re-runs the
// engine periodically while online, so actions held back by a failed send
// are retried without waiting for the next connectivity change.
func NewScheduler(e *Engine, m network.Monitor, resync time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		engine:  e,
		monitor: m,
		resync:  resync,
		logger:  logger,
		trigger: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start applies the monitor's current state, subscribes to later changes
// and starts the loop. A pass is triggered right away when online.
// A scheduler can only be started once.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	// Subscribe before sampling so no transition falls in between. Early
	// notifications block on s.mu and are applied after the sample.
	s.unsubscribe = s.monitor.Subscribe(s.onNetworkChange)
	online := s.monitor.CurrentState(ctx)
	s.engine.SetOnline(online)

	s.logger.Info("scheduler_started",
		zap.Bool("online", online),
		zap.Duration("resync_interval", s.resync),
	)

	go s.loop(ctx)
	if online {
		s.Trigger()
	}
}

// Trigger asks for a pass without blocking.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Stop unsubscribes from the monitor and waits for an in-flight pass.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	unsubscribe := s.unsubscribe
	s.mu.Unlock()

	unsubscribe()
	close(s.stopCh)
	<-s.done

	s.logger.Info("scheduler_stopped")
}

// Serve runs the scheduler until ctx is done.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Scheduler) onNetworkChange(online bool) {
	s.mu.Lock()
	s.engine.SetOnline(online)
	s.mu.Unlock()

	if online {
		s.Trigger()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	var tick <-chan time.Time
	if s.resync > 0 {
		ticker := time.NewTicker(s.resync)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-s.trigger:
			s.engine.Run(ctx)
		case <-tick:
			if s.engine.Online() {
				s.engine.Run(ctx)
			}
		}
	}
}
