// Package errors provides centralized error definitions and error handling utilities
// for shipyard. It defines the error taxonomy used to classify failures of a
// single (job, environment) pipeline, typed errors carrying request context, and
// classification helpers used by the retry loops.
//
// # Error Kinds
//
// Every failure that reaches a job result is reduced to one [Kind]:
//   - KindTransport: network or HTTP failure, retried within bounded attempts
//   - KindAuth: credentials rejected, never retried
//   - KindRemoteRejected: the CI system refused the request, never retried
//   - KindResolutionTimeout: the queue never produced a build number in time
//   - KindPollTimeout: the build never reached a terminal state in time
//   - KindCancelled: operator-initiated or queue-cancelled
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewCIError(errors.KindTransport, "trigger", cause).
//		WithJob("app-a").WithStatusCode(503)
//
//	err := errors.NewLoadError("jobs.csv", cause).WithRow(4).WithColumn("OBC")
//
// Checking errors:
//
//	if errors.IsRetryable(err) { ... }
//	switch errors.KindOf(err) { ... }
//
//	var ciErr *errors.CIError
//	if errors.As(err, &ciErr) { ... }
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Kind classifies why a job pipeline did not finish cleanly.
// The zero value means no error.
type Kind string

const (
	KindNone              Kind = ""
	KindTransport         Kind = "transport"
	KindAuth              Kind = "auth"
	KindRemoteRejected    Kind = "remote_rejected"
	KindResolutionTimeout Kind = "resolution_timeout"
	KindPollTimeout       Kind = "poll_timeout"
	KindCancelled         Kind = "cancelled"
)

// String returns the kind's wire name, or "none" for the zero value.
func (k Kind) String() string {
	if k == KindNone {
		return "none"
	}
	return string(k)
}

// Retryable reports whether failures of this kind may succeed on a later attempt.
func (k Kind) Retryable() bool {
	return k == KindTransport
}

// Kinds returns every non-empty kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindTransport,
		KindAuth,
		KindRemoteRejected,
		KindResolutionTimeout,
		KindPollTimeout,
		KindCancelled,
	}
}

// ParseKind converts a wire name back into a Kind.
func ParseKind(s string) (Kind, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "none" {
		return KindNone, true
	}
	for _, k := range Kinds() {
		if string(k) == s {
			return k, true
		}
	}
	return KindNone, false
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

var (
	// ErrTransport indicates a network or HTTP level failure.
	ErrTransport = New("transport failure")
	// ErrAuth indicates the CI server rejected the supplied credentials.
	ErrAuth = New("authentication rejected")
	// ErrRemoteRejected indicates the CI server refused the request.
	ErrRemoteRejected = New("request rejected by CI server")
	// ErrResolutionTimeout indicates a queue item never produced a build.
	ErrResolutionTimeout = New("queue resolution timed out")
	// ErrPollTimeout indicates a build never reached a terminal state.
	ErrPollTimeout = New("build polling timed out")
	// ErrCancelled indicates the operation was cancelled.
	ErrCancelled = New("cancelled")
	// ErrQueueCancelled indicates the CI server cancelled the queued build.
	ErrQueueCancelled = fmt.Errorf("queue item cancelled: %w", ErrCancelled)
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// sentinelFor maps a kind to its sentinel.
func sentinelFor(k Kind) error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindAuth:
		return ErrAuth
	case KindRemoteRejected:
		return ErrRemoteRejected
	case KindResolutionTimeout:
		return ErrResolutionTimeout
	case KindPollTimeout:
		return ErrPollTimeout
	case KindCancelled:
		return ErrCancelled
	default:
		return nil
	}
}

// -----------------------------------------------------------------------------
// CIError
// -----------------------------------------------------------------------------

// CIError represents a failed interaction with the CI server or a failed
// stage of a job pipeline.
//
// Example:
//
//	err := errors.NewCIError(errors.KindAuth, "trigger", nil).WithJob("app-a").WithStatusCode(401)
//	fmt.Println(err) // "ci error [op=trigger, job=app-a, status=401]: authentication rejected"
type CIError struct {
	Kind        Kind
	Operation   string
	Job         string
	Environment string
	StatusCode  int
	cause       error
}

// NewCIError creates a CIError of the given kind for an operation.
func NewCIError(kind Kind, operation string, cause error) *CIError {
	return &CIError{
		Kind:      kind,
		Operation: operation,
		cause:     cause,
	}
}

// WithJob adds the job identity to the error context.
func (e *CIError) WithJob(job string) *CIError {
	e.Job = job
	return e
}

// WithEnvironment adds the target environment to the error context.
func (e *CIError) WithEnvironment(env string) *CIError {
	e.Environment = env
	return e
}

// WithStatusCode adds the HTTP status code to the error context.
func (e *CIError) WithStatusCode(code int) *CIError {
	e.StatusCode = code
	return e
}

// Error returns the formatted error message.
func (e *CIError) Error() string {
	var parts []string
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Operation))
	}
	if e.Job != "" {
		parts = append(parts, fmt.Sprintf("job=%s", e.Job))
	}
	if e.Environment != "" {
		parts = append(parts, fmt.Sprintf("env=%s", e.Environment))
	}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}

	prefix := "ci error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("ci error [%s]", strings.Join(parts, ", "))
	}

	msg := "unknown failure"
	if s := sentinelFor(e.Kind); s != nil {
		msg = s.Error()
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Unwrap returns the underlying cause.
func (e *CIError) Unwrap() error {
	return e.cause
}

// Is matches any *CIError target, the sentinel of the error's kind, and the cause chain.
func (e *CIError) Is(target error) bool {
	if _, ok := target.(*CIError); ok {
		return true
	}
	if s := sentinelFor(e.Kind); s != nil && target == s {
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// LoadError
// -----------------------------------------------------------------------------

// LoadError reports a failure of the descriptor source. It aborts the whole
// run before any job is triggered.
//
// Example:
//
//	err := errors.NewLoadError("jobs.csv", cause).WithRow(3).WithColumn("OBC")
//	fmt.Println(err) // "load error [file=jobs.csv, row=3, column=OBC]: ..."
type LoadError struct {
	Path   string
	Row    int
	Column string
	cause  error
}

// NewLoadError creates a LoadError for the given source path.
func NewLoadError(path string, cause error) *LoadError {
	return &LoadError{Path: path, cause: cause}
}

// WithRow adds the 1-based row number to the error context.
func (e *LoadError) WithRow(row int) *LoadError {
	e.Row = row
	return e
}

// WithColumn adds the column name to the error context.
func (e *LoadError) WithColumn(col string) *LoadError {
	e.Column = col
	return e
}

// Error returns the formatted error message.
func (e *LoadError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("file=%s", e.Path))
	}
	if e.Row > 0 {
		parts = append(parts, fmt.Sprintf("row=%d", e.Row))
	}
	if e.Column != "" {
		parts = append(parts, fmt.Sprintf("column=%s", e.Column))
	}

	prefix := "load error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("load error [%s]", strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", prefix, e.cause)
	}
	return prefix
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.cause
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or configuration.
//
// Example:
//
//	err := errors.NewValidationError("must be at least 1").WithField("concurrency").WithValue(0)
type ValidationError struct {
	Field   string
	Value   any
	message string
	cause   error
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{message: message}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Unwrap returns the underlying cause.
func (e *ValidationError) Unwrap() error {
	return e.cause
}

// Is matches any *ValidationError and ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return target == ErrInvalidInput
}

// TimeoutError represents a wait loop that ran out of time.
//
// Example:
//
//	err := errors.NewTimeoutError(errors.KindPollTimeout, "waiting for build 42", 30*time.Minute)
//	fmt.Println(err) // "timeout error: waiting for build 42 (timeout: 30m0s)"
type TimeoutError struct {
	Kind      Kind
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a TimeoutError. kind should be KindResolutionTimeout
// or KindPollTimeout.
func NewTimeoutError(kind Kind, operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		Kind:      kind,
		Operation: operation,
		Duration:  duration,
	}
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
}

// Is matches any *TimeoutError and the sentinel of its kind.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if s := sentinelFor(e.Kind); s != nil && target == s {
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// KindOf reduces any error to a Kind. Context cancellation and deadline errors
// classify as KindCancelled, typed errors report their own kind, sentinels map
// to their kind, and anything else is treated as a transport failure.
//
// Example:
//
//	result.ErrorKind = errors.KindOf(err)
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var ciErr *CIError
	if As(err, &ciErr) && ciErr.Kind != KindNone {
		return ciErr.Kind
	}
	var timeoutErr *TimeoutError
	if As(err, &timeoutErr) && timeoutErr.Kind != KindNone {
		return timeoutErr.Kind
	}

	if Is(err, context.Canceled) || Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	for _, k := range Kinds() {
		if Is(err, sentinelFor(k)) {
			return k
		}
	}
	return KindTransport
}

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. Only transport failures are retryable.
//
// Example:
//
//	if errors.IsRetryable(err) && failures <= maxRetries {
//	    continue
//	}
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err).Retryable()
}

// IsCancelled reports whether the error stems from cancellation.
func IsCancelled(err error) bool {
	return err != nil && KindOf(err) == KindCancelled
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to write report")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to open %s", path)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
