// Package ciclient talks to a Jenkins-style CI server.
//
// A [Client] exposes the three requests the orchestrator needs: trigger a
// build, ask the queue whether a triggered build has started, and read a
// build's state. Every method performs exactly one HTTP request and returns
// an *errors.CIError on failure; retrying is the caller's job.
package ciclient

import (
	"context"

	"github.com/Iron-Ham/shipyard/internal/job"
)

// Operation names used in errors, logs and ci.call events.
const (
	OpTrigger = "trigger"
	OpResolve = "resolve"
	OpPoll    = "poll"
	OpCrumb   = "crumb"
)

// Client is the CI server contract. Implementations must be safe for
// concurrent use by many job runners.
type Client interface {
	// Trigger starts a build of identity with params.
	Trigger(ctx context.Context, identity string, params map[string]string) (job.TriggerHandle, error)
	// ResolveQueue asks whether a queued trigger has become a build.
	ResolveQueue(ctx context.Context, h job.TriggerHandle) (Resolution, error)
	// PollStatus returns the current state of a build.
	PollStatus(ctx context.Context, b job.BuildHandle) (job.BuildState, error)
}

// Resolution is the answer to one queue query. Build is nil while the item
// is still waiting; Cancelled is set when the item was removed from the queue.
type Resolution struct {
	Build     *job.BuildHandle
	Cancelled bool
	// Why is the server's explanation for a waiting item, if any.
	Why string
}

// Pending reports whether the queue item is still waiting.
func (r Resolution) Pending() bool {
	return r.Build == nil && !r.Cancelled
}
