package cmd

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/Iron-Ham/shipyard/internal/event"
	"github.com/Iron-Ham/shipyard/internal/job"
	"github.com/Iron-Ham/shipyard/internal/sink"
)

// progress prints one line per finished job.
type progress struct {
	mu    sync.Mutex
	out   io.Writer
	total int
	done  int
}

func newProgress(out io.Writer) *progress {
	return &progress{out: out}
}

// subscribe attaches the printer to bus.
func (p *progress) subscribe(bus *event.Bus) {
	bus.Subscribe(event.TypeRunStarted, func(e event.Event) {
		if rs, ok := e.(event.RunStartedEvent); ok {
			p.mu.Lock()
			p.total = rs.Tasks
			p.mu.Unlock()
			fmt.Fprintf(p.out, "Running %d jobs across %d descriptors, %d at a time\n",
				rs.Tasks, rs.Descriptors, rs.Concurrency)
		}
	})
	bus.Subscribe(event.TypeJobCompleted, func(e event.Event) {
		if jc, ok := e.(event.JobCompletedEvent); ok {
			p.completed(jc.Result)
		}
	})
}

func (p *progress) completed(r job.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++

	build := ""
	if r.BuildNumber > 0 {
		build = " #" + strconv.Itoa(r.BuildNumber)
	}
	reason := ""
	if !r.OK() {
		reason = " (" + r.ErrorKind.String() + ")"
	}
	width := len(strconv.Itoa(p.total))
	fmt.Fprintf(p.out, "[%*d/%d] %s @ %s: %s%s%s\n",
		width, p.done, p.total, r.JobIdentity, r.Environment, sink.StateLabel(r.State), build, reason)
}
