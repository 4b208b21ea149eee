package orchestrator

import (
	"context"
	"time"

	"github.com/Iron-Ham/shipyard/internal/ciclient"
	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/event"
	"github.com/Iron-Ham/shipyard/internal/job"
	"github.com/Iron-Ham/shipyard/internal/logging"
)

// Runner carries one (descriptor, environment) pair through trigger,
// resolution and polling. A Runner is safe for concurrent use; it keeps no
// per-task state.
type Runner struct {
	client   ciclient.Client
	resolver *Resolver
	poller   *Poller
	envParam string
	runID    string
	bus      *event.Bus
	logger   *logging.Logger
}

// NewRunner creates a Runner. bus may be nil.
func NewRunner(client ciclient.Client, cfg Config, runID string, bus *event.Bus, logger *logging.Logger) *Runner {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Runner{
		client:   client,
		resolver: NewResolver(client, cfg, logger),
		poller:   NewPoller(client, cfg, logger),
		envParam: cfg.EnvParam,
		runID:    runID,
		bus:      bus,
		logger:   logger,
	}
}

// Params returns the parameters sent for desc in env: the descriptor's
// parameters plus the environment parameter.
func (r *Runner) Params(desc job.Descriptor, env string) map[string]string {
	params := desc.StringParams()
	params[r.envParam] = env
	return params
}

// Run executes one pair and returns its Result. Every failure is folded into
// the Result; Run never returns an error.
func (r *Runner) Run(ctx context.Context, index int, desc job.Descriptor, env string) job.Result {
	identity := desc.Identity()
	logger := r.logger.WithJob(identity).WithEnvironment(env).With("index", index)
	params := r.Params(desc, env)

	res := job.Result{
		JobIdentity: identity,
		Environment: env,
		State:       job.StatePending,
		Params:      params,
		StartedAt:   time.Now(),
	}
	r.bus.Publish(event.NewJobStartedEvent(r.runID, index, identity, env))
	logger.Debug("triggering build")

	handle, err := r.client.Trigger(ctx, identity, params)
	if err != nil {
		return r.finish(logger, index, res, err)
	}
	r.bus.Publish(event.NewJobTriggeredEvent(r.runID, index, env, handle))
	logger.Info("build triggered", "handle", handle.String())

	res.State = job.StateRunning
	build, err := r.resolver.Resolve(ctx, handle)
	if err != nil {
		return r.finish(logger, index, res, err)
	}
	res.BuildNumber = build.Number
	r.bus.Publish(event.NewJobResolvedEvent(r.runID, index, env, build))
	logger.Info("build resolved", "build", build.Number)

	state, err := r.poller.Poll(ctx, build)
	res.State = state
	return r.finish(logger, index, res, err)
}

// finish stamps res with err, logs the outcome and publishes job.completed.
func (r *Runner) finish(logger *logging.Logger, index int, res job.Result, err error) job.Result {
	res.FinishedAt = time.Now()
	if err != nil {
		res.ErrorKind = errors.KindOf(err)
		res.Detail = err.Error()
		if errors.Is(err, errors.ErrQueueCancelled) {
			res.State = job.StateAborted
		} else {
			res.State = job.StateUnknown
		}
	}

	if err != nil {
		logger.Warn("job failed",
			"state", res.State.String(), "error_kind", res.ErrorKind.String(), "error", res.Detail)
	} else {
		logger.Info("job completed",
			"state", res.State.String(), "build", res.BuildNumber, "duration_ms", res.Duration().Milliseconds())
	}
	r.bus.Publish(event.NewJobCompletedEvent(r.runID, index, res))
	return res
}

// Skip records a pair that never got a worker because the run was cancelled.
// The CI server is not contacted.
func (r *Runner) Skip(index int, desc job.Descriptor, env string, cause error) job.Result {
	now := time.Now()
	res := job.Result{
		JobIdentity: desc.Identity(),
		Environment: env,
		State:       job.StateUnknown,
		ErrorKind:   errors.KindCancelled,
		Detail:      "not started: " + cause.Error(),
		Params:      r.Params(desc, env),
		StartedAt:   now,
		FinishedAt:  now,
	}
	r.bus.Publish(event.NewJobCompletedEvent(r.runID, index, res))
	return res
}
