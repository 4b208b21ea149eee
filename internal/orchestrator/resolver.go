package orchestrator

import (
	"context"

	"github.com/Iron-Ham/shipyard/internal/ciclient"
	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/job"
	"github.com/Iron-Ham/shipyard/internal/logging"
)

// Resolver turns a TriggerHandle into a BuildHandle by polling the queue.
type Resolver struct {
	client ciclient.Client
	loop   waitLoop
}

// NewResolver creates a Resolver with the resolve interval, timeout and
// retry budget of cfg.
func NewResolver(client ciclient.Client, cfg Config, logger *logging.Logger) *Resolver {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Resolver{
		client: client,
		loop: waitLoop{
			op:          ciclient.OpResolve,
			interval:    cfg.ResolveInterval,
			timeout:     cfg.ResolveTimeout,
			timeoutKind: errors.KindResolutionTimeout,
			maxRetries:  cfg.MaxTransportRetries,
			logger:      logger,
		},
	}
}

// Resolve waits for the build number of h. A handle that already carries a
// build number returns without a query. A queue item cancelled on the server
// yields an error matching errors.ErrQueueCancelled.
func (r *Resolver) Resolve(ctx context.Context, h job.TriggerHandle) (job.BuildHandle, error) {
	if b, ok := h.Build(); ok {
		return b, nil
	}

	var build job.BuildHandle
	err := r.loop.run(ctx, func(ctx context.Context) (bool, error) {
		res, err := r.client.ResolveQueue(ctx, h)
		if err != nil {
			return false, err
		}
		if res.Cancelled {
			return false, errors.NewCIError(errors.KindCancelled, ciclient.OpResolve, errors.ErrQueueCancelled).
				WithJob(h.JobIdentity)
		}
		if res.Build == nil {
			r.loop.logger.Debug("queue item waiting", "queue_id", h.QueueID, "why", res.Why)
			return false, nil
		}
		build = *res.Build
		return true, nil
	})
	if err != nil {
		return job.BuildHandle{}, err
	}
	return build, nil
}
