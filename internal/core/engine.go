package core

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Popie52/offlinesync/internal/clock"
	"github.com/Popie52/offlinesync/internal/metrics"
	"github.com/Popie52/offlinesync/internal/sender"
	"github.com/Popie52/offlinesync/internal/store"
)

const DefaultMaxRetry = 5

type PassOutcome string

const (
	OutcomeDrained  PassOutcome = "drained"  // every eligible action was delivered
	OutcomeHalted   PassOutcome = "halted"   // a send failed and the pass stopped there
	OutcomeAborted  PassOutcome = "aborted"  // the store failed mid-pass
	OutcomeDeferred PassOutcome = "deferred" // the sender refused before trying; nothing charged
)

// PassReport describes one completed pass. It is informational; callers
// never need it to make progress.
type PassReport struct {
	Ran       bool
	Outcome   PassOutcome
	Attempted int
	Completed int
	Skipped   int

	// FailedID is the action whose send failed, if any.
	FailedID   string
	Err        error
	StartedAt  int64
	FinishedAt int64
}

// Engine drains the pending queue through a Sender. At most one pass runs
// at a time; a Run that finds a pass in flight, or finds the engine
// offline, returns at once without a callback.
type Engine struct {
	store    store.ActionStore
	sender   sender.Sender
	maxRetry int
	logger   *zap.Logger
	metrics  metrics.MetricsFn
	clock    clock.Clock

	mu         sync.Mutex
	online     bool
	syncing    bool
	onComplete func(PassReport)
}

func NewEngine(st store.ActionStore, s sender.Sender, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		sender:   s,
		maxRetry: DefaultMaxRetry,
		logger:   zap.NewNop(),
		metrics:  metrics.Nop{},
		clock:    clock.NewMonotonic(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	changed := e.online != online
	e.online = online
	e.mu.Unlock()

	e.metrics.SetOnline(online)
	if changed {
		e.logger.Info("engine_online_changed", zap.Bool("online", online))
	}
}

func (e *Engine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

func (e *Engine) Syncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncing
}

// SetOnComplete replaces the callback invoked after every pass that ran.
// nil clears it.
func (e *Engine) SetOnComplete(fn func(PassReport)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onComplete = fn
}

func (e *Engine) MaxRetry() int { return e.maxRetry }

// Run performs one sync pass if the engine is online and idle.
func (e *Engine) Run(ctx context.Context) PassReport {
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		e.logger.Debug("sync_pass_skipped", zap.String("reason", "already_syncing"))
		return PassReport{}
	}
	if !e.online {
		e.mu.Unlock()
		e.logger.Debug("sync_pass_skipped", zap.String("reason", "offline"))
		return PassReport{}
	}
	e.syncing = true
	e.mu.Unlock()

	e.metrics.SetSyncInProgress(true)
	e.logger.Info("sync_pass_started")

	report := e.pass(ctx)
	if report.Outcome == OutcomeAborted {
		e.refreshPending(ctx)
	}

	e.mu.Lock()
	e.syncing = false
	onComplete := e.onComplete
	e.mu.Unlock()

	e.metrics.SetSyncInProgress(false)
	e.metrics.IncSyncPasses(string(report.Outcome))
	e.logPass(report)

	if onComplete != nil {
		onComplete(report)
	}
	return report
}

// refreshPending re-reads the pending count after an aborted pass, which
// stopped before it could report one. The gauge keeps its last value while
// the store stays unavailable.
func (e *Engine) refreshPending(ctx context.Context) {
	st, err := e.store.Stats(ctx, e.maxRetry)
	if err != nil {
		e.logger.Debug("pending_refresh_failed", zap.Error(err))
		return
	}
	e.metrics.SetPendingActions(st.Pending)
}

func (e *Engine) logPass(r PassReport) {
	fields := []zap.Field{
		zap.String("outcome", string(r.Outcome)),
		zap.Int("attempted", r.Attempted),
		zap.Int("completed", r.Completed),
		zap.Int("skipped", r.Skipped),
		zap.Int64("duration_ms", r.FinishedAt-r.StartedAt),
	}
	if r.FailedID != "" {
		fields = append(fields, zap.String("failed_action_id", r.FailedID))
	}

	switch r.Outcome {
	case OutcomeAborted:
		e.logger.Error("sync_pass_finished", append(fields, zap.Error(r.Err))...)
	case OutcomeHalted, OutcomeDeferred:
		e.logger.Warn("sync_pass_finished", append(fields, zap.Error(r.Err))...)
	default:
		e.logger.Info("sync_pass_finished", fields...)
	}
}
