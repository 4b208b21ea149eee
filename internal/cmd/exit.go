package cmd

import "fmt"

// Process exit codes.
const (
	// ExitOK means every job reached a non-error terminal state.
	ExitOK = 0
	// ExitJobsFailed means the run finished but at least one job did not.
	ExitJobsFailed = 1
	// ExitInvalid means the configuration or job list was rejected before
	// anything was triggered.
	ExitInvalid = 2
	// ExitInterrupted means the run was cancelled by a signal. The partial
	// report was still written.
	ExitInterrupted = 130
)

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitf(code int, format string, args ...any) *ExitError {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}
