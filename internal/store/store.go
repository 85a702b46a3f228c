package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Popie52/offlinesync/internal/clock"
	"github.com/Popie52/offlinesync/internal/model"
	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("action not found")
	ErrUnknownKind = errors.New("unknown action kind")
)

// ActionStore is the durable record of every action ever enqueued.
//
// MarkCompleted and IncrementRetry are no-ops for ids that don't exist, and
// every mutation is atomic with respect to concurrent readers.
type ActionStore interface {
	Enqueue(ctx context.Context, kind model.Kind, payload string) (*model.Action, error)

	// ListPending returns pending actions ordered by priority, then
	// creation time, then insertion order.
	ListPending(ctx context.Context) ([]*model.Action, error)

	// ListCompleted returns completed actions, most recently completed first.
	ListCompleted(ctx context.Context) ([]*model.Action, error)

	// ListAll returns pending actions followed by completed ones.
	ListAll(ctx context.Context) ([]*model.Action, error)

	MarkCompleted(ctx context.Context, id string) error

	IncrementRetry(ctx context.Context, id string) error

	RetryCountOf(ctx context.Context, id string) (int, error)

	Get(ctx context.Context, id string) (*model.Action, error)

	Stats(ctx context.Context, maxRetry int) (Stats, error)

	Close() error
}

type Stats struct {
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	// Exhausted counts pending actions that will be skipped by every pass.
	Exhausted int `json:"exhausted"`
}

func (s Stats) Total() int { return s.Pending + s.Completed }

// newAction builds a pending action; Seq is filled in by the store.
func newAction(c clock.Clock, kind model.Kind, payload string) (*model.Action, error) {
	priority, ok := model.PriorityOf(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	return &model.Action{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    payload,
		Status:     model.StatusPending,
		Priority:   priority,
		RetryCount: 0,
		CreatedAt:  c.NowMillis(),
	}, nil
}
