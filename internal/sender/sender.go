// Package sender delivers actions to the remote endpoint. The sync engine
// treats any non-nil error as a transient failure, except ErrUnavailable.
package sender

import (
	"context"
	"errors"

	"github.com/Popie52/offlinesync/internal/model"
)

// ErrUnavailable wraps refusals made before anything reached the remote
// side, such as an open circuit breaker. These sends are not attempts.
var ErrUnavailable = errors.New("sender unavailable")

type Sender interface {
	Send(ctx context.Context, a *model.Action) error
}

// Func adapts a plain function to Sender.
type Func func(ctx context.Context, a *model.Action) error

func (f Func) Send(ctx context.Context, a *model.Action) error { return f(ctx, a) }
