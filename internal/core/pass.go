package core

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Popie52/offlinesync/internal/model"
	"github.com/Popie52/offlinesync/internal/sender"
)

// pass walks the pending queue in order. Exhausted actions are passed
// over; the first failed send bumps that action's retry count and ends
// the pass so later actions never overtake it. A sender that refuses
// without trying ends the pass with nothing charged.
func (e *Engine) pass(ctx context.Context) (report PassReport) {
	report.Ran = true
	report.StartedAt = e.clock.NowMillis()
	defer func() {
		if r := recover(); r != nil {
			report.Outcome = OutcomeAborted
			report.Err = fmt.Errorf("sync pass panic: %v", r)
		}
		report.FinishedAt = e.clock.NowMillis()
	}()

	pending, err := e.store.ListPending(ctx)
	if err != nil {
		report.Outcome = OutcomeAborted
		report.Err = err
		return report
	}

	for _, a := range pending {
		if a.Exhausted(e.maxRetry) {
			report.Skipped++
			e.metrics.IncActionsSkipped()
			e.logger.Debug("action_skipped",
				zap.String("action_id", a.ID),
				zap.Int("retry_count", a.RetryCount),
			)
			continue
		}

		err := e.send(ctx, a)
		if errors.Is(err, sender.ErrUnavailable) {
			report.Outcome = OutcomeDeferred
			report.Err = err
			e.metrics.SetPendingActions(len(pending) - report.Completed)
			return report
		}

		report.Attempted++
		if err != nil {
			e.metrics.IncSendFailures()
			e.logger.Warn("action_send_failed",
				zap.String("action_id", a.ID),
				zap.String("kind", string(a.Kind)),
				zap.Int("retry_count", a.RetryCount+1),
				zap.Error(err),
			)

			report.FailedID = a.ID
			if ierr := e.store.IncrementRetry(ctx, a.ID); ierr != nil {
				report.Outcome = OutcomeAborted
				report.Err = ierr
				return report
			}
			report.Outcome = OutcomeHalted
			report.Err = err
			e.metrics.SetPendingActions(len(pending) - report.Completed)
			return report
		}

		if err := e.store.MarkCompleted(ctx, a.ID); err != nil {
			report.Outcome = OutcomeAborted
			report.Err = err
			return report
		}
		report.Completed++
		e.metrics.IncActionsCompleted()
		e.logger.Debug("action_synced",
			zap.String("action_id", a.ID),
			zap.String("kind", string(a.Kind)),
		)
	}

	report.Outcome = OutcomeDrained
	e.metrics.SetPendingActions(len(pending) - report.Completed)
	return report
}

// send treats a panicking Sender like any other failed send.
func (e *Engine) send(ctx context.Context, a *model.Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	return e.sender.Send(ctx, a)
}
