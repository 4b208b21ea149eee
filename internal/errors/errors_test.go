package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Kind Tests
// -----------------------------------------------------------------------------

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindNone, "none"},
		{KindTransport, "transport"},
		{KindAuth, "auth"},
		{KindRemoteRejected, "remote_rejected"},
		{KindResolutionTimeout, "resolution_timeout"},
		{KindPollTimeout, "poll_timeout"},
		{KindCancelled, "cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("Kind.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKind_Retryable(t *testing.T) {
	for _, k := range Kinds() {
		want := k == KindTransport
		if got := k.Retryable(); got != want {
			t.Errorf("%s.Retryable() = %v, want %v", k, got, want)
		}
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, ok := ParseKind(" " + string(k) + " ")
		if !ok || got != k {
			t.Errorf("ParseKind(%q) = %q, %v", k, got, ok)
		}
	}
	if got, ok := ParseKind("none"); !ok || got != KindNone {
		t.Errorf("ParseKind(none) = %q, %v", got, ok)
	}
	if _, ok := ParseKind("exploded"); ok {
		t.Error("ParseKind(exploded) should fail")
	}
}

// -----------------------------------------------------------------------------
// CIError Tests
// -----------------------------------------------------------------------------

func TestCIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CIError
		want string
	}{
		{
			name: "bare",
			err:  NewCIError(KindTransport, "", nil),
			want: "ci error: transport failure",
		},
		{
			name: "with context",
			err:  NewCIError(KindAuth, "trigger", nil).WithJob("app-a").WithStatusCode(401),
			want: "ci error [op=trigger, job=app-a, status=401]: authentication rejected",
		},
		{
			name: "with cause and environment",
			err: NewCIError(KindRemoteRejected, "trigger", New("no such job")).
				WithJob("app-b").WithEnvironment("prod"),
			want: "ci error [op=trigger, job=app-b, env=prod]: request rejected by CI server: no such job",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCIError_Is(t *testing.T) {
	cause := New("connection refused")
	err := NewCIError(KindTransport, "poll", cause)

	if !Is(err, &CIError{}) {
		t.Error("Is(CIError{}) = false, want true")
	}
	if !Is(err, ErrTransport) {
		t.Error("Is(ErrTransport) = false, want true")
	}
	if !Is(err, cause) {
		t.Error("Is(cause) = false, want true")
	}
	if Is(err, ErrAuth) {
		t.Error("Is(ErrAuth) = true, want false")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	var ciErr *CIError
	if !As(wrapped, &ciErr) {
		t.Fatal("As(*CIError) failed through wrapping")
	}
	if ciErr.Operation != "poll" {
		t.Errorf("Operation = %q, want poll", ciErr.Operation)
	}
}

// -----------------------------------------------------------------------------
// LoadError Tests
// -----------------------------------------------------------------------------

func TestLoadError_Error(t *testing.T) {
	cause := New(`invalid boolean "maybe"`)
	err := NewLoadError("jobs.csv", cause).WithRow(4).WithColumn("OBC")

	want := `load error [file=jobs.csv, row=4, column=OBC]: invalid boolean "maybe"`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, cause) {
		t.Error("LoadError should unwrap to its cause")
	}
}

// -----------------------------------------------------------------------------
// Semantic Error Tests
// -----------------------------------------------------------------------------

func TestValidationError(t *testing.T) {
	err := NewValidationError("must be at least 1").WithField("concurrency").WithValue(0)

	want := "validation error [field=concurrency, value=0]: must be at least 1"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrInvalidInput) {
		t.Error("ValidationError should match ErrInvalidInput")
	}
	if !Is(err, &ValidationError{}) {
		t.Error("ValidationError should match its own type")
	}
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError(KindPollTimeout, "waiting for build 42", 30*time.Minute)

	want := "timeout error: waiting for build 42 (timeout: 30m0s)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrPollTimeout) {
		t.Error("poll TimeoutError should match ErrPollTimeout")
	}
	if Is(err, ErrResolutionTimeout) {
		t.Error("poll TimeoutError should not match ErrResolutionTimeout")
	}
}

// -----------------------------------------------------------------------------
// Classification Tests
// -----------------------------------------------------------------------------

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"ci error", NewCIError(KindAuth, "trigger", nil), KindAuth},
		{"wrapped ci error", fmt.Errorf("x: %w", NewCIError(KindRemoteRejected, "trigger", nil)), KindRemoteRejected},
		{"timeout", NewTimeoutError(KindResolutionTimeout, "queue", time.Second), KindResolutionTimeout},
		{"context canceled", context.Canceled, KindCancelled},
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), KindCancelled},
		{"queue cancelled", ErrQueueCancelled, KindCancelled},
		{"sentinel", ErrPollTimeout, KindPollTimeout},
		{"unknown", errors.New("boom"), KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("IsRetryable(nil) = true")
	}
	if !IsRetryable(NewCIError(KindTransport, "poll", nil)) {
		t.Error("transport errors should be retryable")
	}
	if IsRetryable(NewCIError(KindAuth, "poll", nil)) {
		t.Error("auth errors should not be retryable")
	}
	if IsRetryable(context.Canceled) {
		t.Error("cancellation should not be retryable")
	}
}

func TestIsCancelled(t *testing.T) {
	if !IsCancelled(ErrQueueCancelled) {
		t.Error("ErrQueueCancelled should be cancelled")
	}
	if IsCancelled(nil) {
		t.Error("nil should not be cancelled")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	base := New("base")
	err := Wrapf(base, "writing %s", "report.csv")
	if err.Error() != "writing report.csv: base" {
		t.Errorf("Wrapf() = %q", err.Error())
	}
	if !Is(err, base) {
		t.Error("Wrapf should preserve the chain")
	}
}
