package orchestrator

import (
	"context"

	"github.com/Iron-Ham/shipyard/internal/ciclient"
	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/job"
	"github.com/Iron-Ham/shipyard/internal/logging"
)

// Poller waits for a build to reach a terminal state.
type Poller struct {
	client ciclient.Client
	loop   waitLoop
}

// NewPoller creates a Poller with the poll interval, build timeout and retry
// budget of cfg.
func NewPoller(client ciclient.Client, cfg Config, logger *logging.Logger) *Poller {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Poller{
		client: client,
		loop: waitLoop{
			op:          ciclient.OpPoll,
			interval:    cfg.PollInterval,
			timeout:     cfg.BuildTimeout,
			timeoutKind: errors.KindPollTimeout,
			maxRetries:  cfg.MaxTransportRetries,
			logger:      logger,
		},
	}
}

// Poll returns the terminal state of b. When it gives up (timeout,
// cancellation, exhausted retries, rejected request) it returns
// StateUnknown and the reason.
func (p *Poller) Poll(ctx context.Context, b job.BuildHandle) (job.BuildState, error) {
	state := job.StateUnknown
	err := p.loop.run(ctx, func(ctx context.Context) (bool, error) {
		s, err := p.client.PollStatus(ctx, b)
		if err != nil {
			return false, err
		}
		if s != state {
			p.loop.logger.Debug("build state", "build", b.Number, "state", s.String())
		}
		state = s
		return s.IsTerminal(), nil
	})
	if err != nil {
		return job.StateUnknown, err
	}
	return state, nil
}
