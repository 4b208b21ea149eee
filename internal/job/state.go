package job

import "strings"

// BuildState is the lifecycle state of a remote build.
type BuildState int

const (
	StatePending BuildState = iota
	StateRunning
	StateSuccess
	StateFailure
	StateUnstable
	StateAborted
	// StateUnknown is reported when no terminal state could be observed. It is
	// terminal only when produced by a timeout, cancellation or abandoned poll.
	StateUnknown
)

// String returns the CI server's spelling of the state.
func (s BuildState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateRunning:
		return "RUNNING"
	case StateSuccess:
		return "SUCCESS"
	case StateFailure:
		return "FAILURE"
	case StateUnstable:
		return "UNSTABLE"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether a polled build can no longer change state.
func (s BuildState) IsTerminal() bool {
	switch s {
	case StateSuccess, StateFailure, StateUnstable, StateAborted:
		return true
	default:
		return false
	}
}

// ParseBuildState maps a result string from the CI server. An empty result
// means the build has not finished. NOT_BUILT counts as aborted.
func ParseBuildState(s string) BuildState {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return StateRunning
	case "PENDING", "QUEUED":
		return StatePending
	case "RUNNING", "BUILDING", "IN_PROGRESS":
		return StateRunning
	case "SUCCESS":
		return StateSuccess
	case "FAILURE", "FAILED":
		return StateFailure
	case "UNSTABLE":
		return StateUnstable
	case "ABORTED", "NOT_BUILT":
		return StateAborted
	default:
		return StateUnknown
	}
}

// States returns all states in declaration order.
func States() []BuildState {
	return []BuildState{
		StatePending, StateRunning, StateSuccess, StateFailure,
		StateUnstable, StateAborted, StateUnknown,
	}
}

// MarshalText encodes the state by name.
func (s BuildState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name. Unrecognised names decode to StateUnknown.
func (s *BuildState) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*s = StateUnknown
		return nil
	}
	*s = ParseBuildState(string(text))
	return nil
}
