// Package testutil provides test doubles for shipyard tests.
package testutil

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Iron-Ham/shipyard/internal/ciclient"
	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/job"
)

// JobScript describes how a ScriptedClient answers for one job (or one
// job/environment pair).
type JobScript struct {
	// TriggerErr fails the trigger.
	TriggerErr error
	// Synchronous returns a build number straight from the trigger.
	Synchronous bool
	// BuildNumber fixes the build number. Zero allocates a unique one.
	BuildNumber int
	// QueuePending is how many queue reads report waiting before the build starts.
	QueuePending int
	// QueueCancelled makes the queue report the item as cancelled.
	QueueCancelled bool
	// ResolveErrs are returned by the leading queue reads, one per read.
	ResolveErrs []error
	// PollErrs are returned by the leading status reads, one per read.
	PollErrs []error
	// States is the sequence returned by status reads after PollErrs. The last
	// element repeats. Empty means Success.
	States []job.BuildState
	// Latency delays every call. The delay honours the call's context.
	Latency time.Duration
}

// Call records one client call.
type Call struct {
	Op       string
	Identity string
	Env      string
	Params   map[string]string
	At       time.Time
}

type queued struct {
	script *JobScript
	reads  int
	build  int
}

type building struct {
	script *JobScript
	reads  int
}

// ScriptedClient is a ciclient.Client whose answers are scripted per job. It
// records every call and the highest number of calls in flight at once.
type ScriptedClient struct {
	// EnvParam is the parameter holding the environment (default "ENV").
	EnvParam string
	// Default applies to jobs without a script.
	Default JobScript
	// OnTrigger, when set, runs at the start of every trigger.
	OnTrigger func(identity string, params map[string]string)

	mu        sync.Mutex
	scripts   map[string]*JobScript
	queue     map[string]*queued
	builds    map[string]*building
	calls     []Call
	nextQueue int
	nextBuild int
	active    int
	maxActive int
}

var _ ciclient.Client = (*ScriptedClient)(nil)

// NewScriptedClient creates a client where every unscripted job succeeds.
func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{
		EnvParam:  "ENV",
		scripts:   make(map[string]*JobScript),
		queue:     make(map[string]*queued),
		builds:    make(map[string]*building),
		nextBuild: 1000,
	}
}

// Script sets the behavior for identity in every environment.
func (c *ScriptedClient) Script(identity string, s JobScript) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[identity] = &s
	return c
}

// ScriptEnv sets the behavior for identity in one environment.
func (c *ScriptedClient) ScriptEnv(identity, env string, s JobScript) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[identity+"@"+env] = &s
	return c
}

// lookup must be called with mu held.
func (c *ScriptedClient) lookup(identity, env string) *JobScript {
	if s, ok := c.scripts[identity+"@"+env]; ok {
		return s
	}
	if s, ok := c.scripts[identity]; ok {
		return s
	}
	d := c.Default
	return &d
}

func buildKey(identity string, n int) string {
	return identity + "#" + strconv.Itoa(n)
}

// enter records a call and waits out the script's latency.
func (c *ScriptedClient) enter(ctx context.Context, call Call, latency time.Duration) error {
	c.mu.Lock()
	call.At = time.Now()
	c.calls = append(c.calls, call)
	c.active++
	if c.active > c.maxActive {
		c.maxActive = c.active
	}
	c.mu.Unlock()

	if latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *ScriptedClient) leave() {
	c.mu.Lock()
	c.active--
	c.mu.Unlock()
}

func cancelled(op, identity string, err error) error {
	return errors.NewCIError(errors.KindCancelled, op, err).WithJob(identity)
}

func (c *ScriptedClient) Trigger(ctx context.Context, identity string, params map[string]string) (job.TriggerHandle, error) {
	if c.OnTrigger != nil {
		c.OnTrigger(identity, params)
	}

	env := params[c.EnvParam]
	c.mu.Lock()
	s := c.lookup(identity, env)
	c.mu.Unlock()

	copied := make(map[string]string, len(params))
	for k, v := range params {
		copied[k] = v
	}
	err := c.enter(ctx, Call{Op: ciclient.OpTrigger, Identity: identity, Env: env, Params: copied}, s.Latency)
	defer c.leave()
	if err != nil {
		return job.TriggerHandle{}, cancelled(ciclient.OpTrigger, identity, err)
	}
	if s.TriggerErr != nil {
		return job.TriggerHandle{}, s.TriggerErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if s.Synchronous {
		n := c.allocBuild(identity, s)
		return job.TriggerHandle{JobIdentity: identity, BuildNumber: n}, nil
	}
	c.nextQueue++
	id := strconv.Itoa(c.nextQueue)
	c.queue[id] = &queued{script: s}
	return job.TriggerHandle{JobIdentity: identity, QueueID: id}, nil
}

// allocBuild must be called with mu held.
func (c *ScriptedClient) allocBuild(identity string, s *JobScript) int {
	n := s.BuildNumber
	if n == 0 {
		c.nextBuild++
		n = c.nextBuild
	}
	c.builds[buildKey(identity, n)] = &building{script: s}
	return n
}

func (c *ScriptedClient) ResolveQueue(ctx context.Context, h job.TriggerHandle) (ciclient.Resolution, error) {
	if b, ok := h.Build(); ok {
		return ciclient.Resolution{Build: &b}, nil
	}

	c.mu.Lock()
	q, ok := c.queue[h.QueueID]
	c.mu.Unlock()
	if !ok {
		return ciclient.Resolution{}, errors.NewCIError(errors.KindRemoteRejected, ciclient.OpResolve,
			fmt.Errorf("unknown queue item %q", h.QueueID)).WithJob(h.JobIdentity)
	}

	err := c.enter(ctx, Call{Op: ciclient.OpResolve, Identity: h.JobIdentity}, q.script.Latency)
	defer c.leave()
	if err != nil {
		return ciclient.Resolution{}, cancelled(ciclient.OpResolve, h.JobIdentity, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	q.reads++
	s := q.script
	if q.reads <= len(s.ResolveErrs) {
		return ciclient.Resolution{}, s.ResolveErrs[q.reads-1]
	}
	if s.QueueCancelled {
		return ciclient.Resolution{Cancelled: true}, nil
	}
	if q.reads-len(s.ResolveErrs) <= s.QueuePending {
		return ciclient.Resolution{Why: "Waiting for next available executor"}, nil
	}
	if q.build == 0 {
		q.build = c.allocBuild(h.JobIdentity, s)
	}
	return ciclient.Resolution{Build: &job.BuildHandle{JobIdentity: h.JobIdentity, Number: q.build}}, nil
}

func (c *ScriptedClient) PollStatus(ctx context.Context, b job.BuildHandle) (job.BuildState, error) {
	c.mu.Lock()
	bs, ok := c.builds[buildKey(b.JobIdentity, b.Number)]
	c.mu.Unlock()
	if !ok {
		return job.StateUnknown, errors.NewCIError(errors.KindTransport, ciclient.OpPoll,
			fmt.Errorf("unknown build %s", b)).WithJob(b.JobIdentity).WithStatusCode(404)
	}

	err := c.enter(ctx, Call{Op: ciclient.OpPoll, Identity: b.JobIdentity}, bs.script.Latency)
	defer c.leave()
	if err != nil {
		return job.StateUnknown, cancelled(ciclient.OpPoll, b.JobIdentity, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	bs.reads++
	s := bs.script
	if bs.reads <= len(s.PollErrs) {
		return job.StateUnknown, s.PollErrs[bs.reads-1]
	}
	if len(s.States) == 0 {
		return job.StateSuccess, nil
	}
	i := bs.reads - len(s.PollErrs) - 1
	if i >= len(s.States) {
		i = len(s.States) - 1
	}
	return s.States[i], nil
}

// Calls returns a copy of every recorded call.
func (c *ScriptedClient) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Count returns how many calls of op were made for identity. An empty
// identity counts every job.
func (c *ScriptedClient) Count(op, identity string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Op == op && (identity == "" || call.Identity == identity) {
			n++
		}
	}
	return n
}

// MaxInFlight returns the highest number of simultaneous calls observed.
func (c *ScriptedClient) MaxInFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxActive
}

// Transport returns a retryable error as the Jenkins client would produce it.
func Transport(op string, status int) error {
	return errors.NewCIError(errors.KindTransport, op, errors.New("injected")).WithStatusCode(status)
}

// Rejected returns a non-retryable rejection.
func Rejected(op string, status int) error {
	return errors.NewCIError(errors.KindRemoteRejected, op, errors.New("injected")).WithStatusCode(status)
}
