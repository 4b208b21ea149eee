package orchestrator

import (
	"context"
	"time"

	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/logging"
)

// waitLoop is the fixed-interval query loop shared by the resolver and the
// poller.
type waitLoop struct {
	op          string
	interval    time.Duration
	timeout     time.Duration
	timeoutKind errors.Kind
	maxRetries  int
	logger      *logging.Logger
}

// query performs one request. done ends the loop successfully.
type query func(ctx context.Context) (done bool, err error)

// run calls q immediately and then once per interval until q reports done,
// q fails with a non-retryable error, transport failures exceed maxRetries,
// the timeout elapses or ctx is cancelled.
func (l waitLoop) run(ctx context.Context, q query) error {
	deadline := time.NewTimer(l.timeout)
	defer deadline.Stop()

	failures := 0
	for attempt := 1; ; attempt++ {
		done, err := q(ctx)
		switch {
		case err == nil:
			failures = 0
			if done {
				return nil
			}
		case ctx.Err() != nil:
			return errors.NewCIError(errors.KindCancelled, l.op, ctx.Err())
		case errors.IsRetryable(err):
			failures++
			if failures > l.maxRetries {
				l.logger.Warn("giving up after consecutive transport failures",
					"op", l.op, "failures", failures, "error", err.Error())
				return err
			}
			l.logger.Debug("transport failure, will retry",
				"op", l.op, "attempt", attempt, "failures", failures, "error", err.Error())
		default:
			return err
		}

		if err := l.pause(ctx, deadline.C); err != nil {
			return err
		}
	}
}

// pause waits one interval. Cancellation wins over an expired deadline.
func (l waitLoop) pause(ctx context.Context, deadline <-chan time.Time) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCIError(errors.KindCancelled, l.op, err)
	}

	t := time.NewTimer(l.interval)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return errors.NewCIError(errors.KindCancelled, l.op, ctx.Err())
	case <-deadline:
		if ctx.Err() != nil {
			return errors.NewCIError(errors.KindCancelled, l.op, ctx.Err())
		}
		return errors.NewTimeoutError(l.timeoutKind, l.op, l.timeout)
	case <-t.C:
		return nil
	}
}
