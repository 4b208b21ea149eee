package ciclient

import (
	"context"
	"time"

	"github.com/Iron-Ham/shipyard/internal/event"
	"github.com/Iron-Ham/shipyard/internal/job"
)

// observed publishes a ci.call event around every call of the wrapped client.
type observed struct {
	next Client
	bus  *event.Bus
}

// Observe wraps c so that every call is published on bus. A nil bus returns c.
func Observe(c Client, bus *event.Bus) Client {
	if bus == nil {
		return c
	}
	return &observed{next: c, bus: bus}
}

func (o *observed) Trigger(ctx context.Context, identity string, params map[string]string) (job.TriggerHandle, error) {
	start := time.Now()
	h, err := o.next.Trigger(ctx, identity, params)
	o.bus.Publish(event.NewCICallEvent(OpTrigger, identity, time.Since(start), err))
	return h, err
}

func (o *observed) ResolveQueue(ctx context.Context, h job.TriggerHandle) (Resolution, error) {
	start := time.Now()
	r, err := o.next.ResolveQueue(ctx, h)
	o.bus.Publish(event.NewCICallEvent(OpResolve, h.JobIdentity, time.Since(start), err))
	return r, err
}

func (o *observed) PollStatus(ctx context.Context, b job.BuildHandle) (job.BuildState, error) {
	start := time.Now()
	s, err := o.next.PollStatus(ctx, b)
	o.bus.Publish(event.NewCICallEvent(OpPoll, b.JobIdentity, time.Since(start), err))
	return s, err
}
