package ciclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Iron-Ham/shipyard/internal/errors"
)

// classifyStatus maps a non-2xx response to an error kind. 5xx, 408 and 429
// are transient. 404 is transient for queue and build reads; on a trigger it
// means the job does not exist. 401 and 403 are credential problems. Every
// other status is a rejection of the request itself.
func classifyStatus(op, identity string, status int, body string) *errors.CIError {
	var kind errors.Kind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = errors.KindAuth
	case status >= 500,
		status == http.StatusNotFound && op != OpTrigger,
		status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests:
		kind = errors.KindTransport
	default:
		kind = errors.KindRemoteRejected
	}

	var cause error
	if body != "" {
		cause = fmt.Errorf("%s: %s", http.StatusText(status), body)
	} else {
		cause = errors.New(http.StatusText(status))
	}
	return errors.NewCIError(kind, op, cause).WithJob(identity).WithStatusCode(status)
}

// classifyTransport maps a failed round trip. A request aborted by its own
// context is a cancellation, not a transport failure.
func classifyTransport(ctx context.Context, op, identity string, err error) *errors.CIError {
	kind := errors.KindTransport
	if ctx.Err() != nil {
		kind = errors.KindCancelled
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return errors.NewCIError(kind, op, err).WithJob(identity)
}
