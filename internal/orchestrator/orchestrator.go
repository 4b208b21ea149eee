package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/shipyard/internal/ciclient"
	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/event"
	"github.com/Iron-Ham/shipyard/internal/job"
	"github.com/Iron-Ham/shipyard/internal/logging"
)

// Source supplies descriptors for RunSource.
type Source interface {
	Load(ctx context.Context) ([]job.Descriptor, error)
}

// Orchestrator fans a list of descriptors out to job runners under a
// concurrency limit and collects their results into an ordered Report.
type Orchestrator struct {
	client ciclient.Client
	cfg    Config
	bus    *event.Bus
	logger *logging.Logger
	runID  string
}

// New creates an Orchestrator. Zero fields of cfg take their defaults.
func New(client ciclient.Client, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client: client,
		cfg:    cfg.withDefaults(),
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// task is one (descriptor, environment) pair and its slot in the report.
type task struct {
	index int
	desc  job.Descriptor
	env   string
}

func expand(descriptors []job.Descriptor) []task {
	tasks := make([]task, 0, job.TaskCount(descriptors))
	for _, d := range descriptors {
		for _, env := range d.Environments() {
			tasks = append(tasks, task{index: len(tasks), desc: d, env: env})
		}
	}
	return tasks
}

func validate(descriptors []job.Descriptor, limit int) error {
	if limit < 1 {
		return errors.NewValidationError("concurrency limit must be at least 1").
			WithField("limit").WithValue(limit)
	}
	for i, d := range descriptors {
		if !d.Valid() {
			return errors.NewValidationError("descriptor needs a job identity and at least one environment").
				WithField(fmt.Sprintf("descriptors[%d]", i)).WithValue(d.Identity())
		}
	}
	return nil
}

// Run triggers every (descriptor, environment) pair and waits for all of
// them. At most limit pairs are in flight at once. The report holds one
// result per pair in input order, including pairs that failed or were
// cancelled.
//
// Run returns an error only for invalid input, in which case nothing is
// triggered. Cancelling ctx stops new pairs from starting and makes running
// ones give up at their next wait; the partial report is still returned.
func (o *Orchestrator) Run(ctx context.Context, descriptors []job.Descriptor, limit int) (*job.Report, error) {
	if err := validate(descriptors, limit); err != nil {
		return nil, err
	}

	runID := o.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := o.logger.WithRun(runID)
	runner := NewRunner(o.client, o.cfg, runID, o.bus, logger)

	tasks := expand(descriptors)
	report := &job.Report{
		RunID:     runID,
		StartedAt: time.Now(),
		Results:   make([]job.Result, len(tasks)),
	}

	o.bus.Publish(event.NewRunStartedEvent(runID, len(descriptors), len(tasks), limit))
	logger.Info("run started", "descriptors", len(descriptors), "tasks", len(tasks), "concurrency", limit)

	p := pool.New().WithMaxGoroutines(limit)
	for _, t := range tasks {
		if ctx.Err() != nil {
			report.Results[t.index] = runner.Skip(t.index, t.desc, t.env, ctx.Err())
			continue
		}
		p.Go(func() {
			if err := ctx.Err(); err != nil {
				report.Results[t.index] = runner.Skip(t.index, t.desc, t.env, err)
				return
			}
			report.Results[t.index] = runner.Run(ctx, t.index, t.desc, t.env)
		})
	}
	p.Wait()

	report.FinishedAt = time.Now()
	cancelled := ctx.Err() != nil
	o.bus.Publish(event.NewRunCompletedEvent(report, cancelled))
	logger.Info("run completed",
		"tasks", report.Len(),
		"failed", len(report.Failed()),
		"cancelled", cancelled,
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds())
	return report, nil
}

// RunSource loads descriptors from src and runs them. A load failure aborts
// the run before anything is triggered and is returned as a *errors.LoadError.
func (o *Orchestrator) RunSource(ctx context.Context, src Source, limit int) (*job.Report, error) {
	descriptors, err := src.Load(ctx)
	if err != nil {
		var loadErr *errors.LoadError
		if errors.As(err, &loadErr) {
			return nil, err
		}
		return nil, errors.NewLoadError("", err)
	}
	return o.Run(ctx, descriptors, limit)
}
