package job

import (
	"time"

	"github.com/Iron-Ham/shipyard/internal/errors"
)

// Result is the outcome of one (descriptor, environment) pair.
type Result struct {
	JobIdentity string            `json:"job"`
	Environment string            `json:"environment"`
	State       BuildState        `json:"state"`
	ErrorKind   errors.Kind       `json:"error,omitempty"`
	Detail      string            `json:"detail,omitempty"`
	BuildNumber int               `json:"build_number,omitempty"`
	Params      map[string]string `json:"params,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
}

// OK reports whether the pair reached a terminal state without error.
func (r Result) OK() bool {
	return r.ErrorKind == errors.KindNone && r.State.IsTerminal()
}

// Duration returns how long the pair took.
func (r Result) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Report is the ordered collection of results of one run. Results follow input
// descriptor order, then environment order within a descriptor.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Results    []Result  `json:"results"`
}

// Len returns the number of results.
func (r *Report) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Results)
}

// OK reports whether every result is a non-error terminal state.
func (r *Report) OK() bool {
	if r == nil {
		return true
	}
	for _, res := range r.Results {
		if !res.OK() {
			return false
		}
	}
	return true
}

// Strict reports whether every build succeeded.
func (r *Report) Strict() bool {
	if r == nil {
		return true
	}
	for _, res := range r.Results {
		if res.ErrorKind != errors.KindNone || res.State != StateSuccess {
			return false
		}
	}
	return true
}

// Failed returns the results that are not OK, in report order.
func (r *Report) Failed() []Result {
	if r == nil {
		return nil
	}
	var out []Result
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// Counts tallies results by state.
func (r *Report) Counts() map[BuildState]int {
	counts := make(map[BuildState]int)
	if r == nil {
		return counts
	}
	for _, res := range r.Results {
		counts[res.State]++
	}
	return counts
}
