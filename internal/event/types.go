package event

import (
	"time"

	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/job"
)

// Event is the interface that all events implement.
type Event interface {
	// EventType returns "category.action", e.g. "job.completed".
	EventType() string
	Timestamp() time.Time
}

// Event type names.
const (
	TypeRunStarted   = "run.started"
	TypeRunCompleted = "run.completed"
	TypeJobStarted   = "job.started"
	TypeJobTriggered = "job.triggered"
	TypeJobResolved  = "job.resolved"
	TypeJobCompleted = "job.completed"
	TypeCICall       = "ci.call"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// -----------------------------------------------------------------------------
// Run Events
// -----------------------------------------------------------------------------

// RunStartedEvent is emitted once the descriptors are validated and expanded.
type RunStartedEvent struct {
	baseEvent
	RunID       string
	Descriptors int
	Tasks       int
	Concurrency int
}

// NewRunStartedEvent creates a RunStartedEvent.
func NewRunStartedEvent(runID string, descriptors, tasks, concurrency int) RunStartedEvent {
	return RunStartedEvent{
		baseEvent:   newBaseEvent(TypeRunStarted),
		RunID:       runID,
		Descriptors: descriptors,
		Tasks:       tasks,
		Concurrency: concurrency,
	}
}

// RunCompletedEvent is emitted after every task reached Done.
type RunCompletedEvent struct {
	baseEvent
	RunID     string
	Tasks     int
	Failed    int
	Cancelled bool
	Duration  time.Duration
}

// NewRunCompletedEvent summarizes report. cancelled reports whether the run
// context ended before all tasks finished on their own.
func NewRunCompletedEvent(report *job.Report, cancelled bool) RunCompletedEvent {
	e := RunCompletedEvent{
		baseEvent: newBaseEvent(TypeRunCompleted),
		Cancelled: cancelled,
	}
	if report != nil {
		e.RunID = report.RunID
		e.Tasks = report.Len()
		e.Failed = len(report.Failed())
		e.Duration = report.FinishedAt.Sub(report.StartedAt)
	}
	return e
}

// -----------------------------------------------------------------------------
// Job Events
// -----------------------------------------------------------------------------

// JobStartedEvent is emitted when a runner begins a (job, environment) pair.
type JobStartedEvent struct {
	baseEvent
	RunID       string
	Index       int
	Job         string
	Environment string
}

// NewJobStartedEvent creates a JobStartedEvent.
func NewJobStartedEvent(runID string, index int, identity, env string) JobStartedEvent {
	return JobStartedEvent{
		baseEvent:   newBaseEvent(TypeJobStarted),
		RunID:       runID,
		Index:       index,
		Job:         identity,
		Environment: env,
	}
}

// JobTriggeredEvent is emitted when the CI server accepted a trigger.
type JobTriggeredEvent struct {
	baseEvent
	RunID       string
	Index       int
	Environment string
	Handle      job.TriggerHandle
}

// NewJobTriggeredEvent creates a JobTriggeredEvent.
func NewJobTriggeredEvent(runID string, index int, env string, h job.TriggerHandle) JobTriggeredEvent {
	return JobTriggeredEvent{
		baseEvent:   newBaseEvent(TypeJobTriggered),
		RunID:       runID,
		Index:       index,
		Environment: env,
		Handle:      h,
	}
}

// JobResolvedEvent is emitted when a queued trigger became a build.
type JobResolvedEvent struct {
	baseEvent
	RunID       string
	Index       int
	Environment string
	Build       job.BuildHandle
}

// NewJobResolvedEvent creates a JobResolvedEvent.
func NewJobResolvedEvent(runID string, index int, env string, b job.BuildHandle) JobResolvedEvent {
	return JobResolvedEvent{
		baseEvent:   newBaseEvent(TypeJobResolved),
		RunID:       runID,
		Index:       index,
		Environment: env,
		Build:       b,
	}
}

// JobCompletedEvent carries the final result of a pair.
type JobCompletedEvent struct {
	baseEvent
	RunID  string
	Index  int
	Result job.Result
}

// NewJobCompletedEvent creates a JobCompletedEvent.
func NewJobCompletedEvent(runID string, index int, result job.Result) JobCompletedEvent {
	return JobCompletedEvent{
		baseEvent: newBaseEvent(TypeJobCompleted),
		RunID:     runID,
		Index:     index,
		Result:    result,
	}
}

// -----------------------------------------------------------------------------
// CI Events
// -----------------------------------------------------------------------------

// CICallEvent records a single request to the CI server.
type CICallEvent struct {
	baseEvent
	Operation string
	Job       string
	Duration  time.Duration
	Kind      errors.Kind
	Err       error
}

// NewCICallEvent creates a CICallEvent. Kind is derived from err.
func NewCICallEvent(op, identity string, d time.Duration, err error) CICallEvent {
	return CICallEvent{
		baseEvent: newBaseEvent(TypeCICall),
		Operation: op,
		Job:       identity,
		Duration:  d,
		Kind:      errors.KindOf(err),
		Err:       err,
	}
}

// Failed reports whether the call returned an error.
func (e CICallEvent) Failed() bool {
	return e.Err != nil
}
