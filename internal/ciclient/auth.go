package ciclient

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/Iron-Ham/shipyard/internal/errors"
)

// Authenticator decorates an outgoing request with credentials.
type Authenticator interface {
	Authenticate(req *http.Request) error
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(req *http.Request) error

func (f AuthenticatorFunc) Authenticate(req *http.Request) error { return f(req) }

// NoAuth sends requests anonymously.
type NoAuth struct{}

func (NoAuth) Authenticate(*http.Request) error { return nil }

// BasicAuth sends a user name and API token.
type BasicAuth struct {
	User  string
	Token string
}

func (a BasicAuth) Authenticate(req *http.Request) error {
	req.SetBasicAuth(a.User, a.Token)
	return nil
}

// Crumb is a CSRF token and the header it travels in.
type Crumb struct {
	Field string
	Value string
}

// CrumbAuth wraps another Authenticator and adds the Jenkins CSRF crumb to
// state-changing requests. The crumb is fetched on first use and cached; a
// failed fetch is retried by the next request.
type CrumbAuth struct {
	next    Authenticator
	fetch   func(ctx context.Context) (Crumb, error)
	mu      sync.Mutex
	cached  *Crumb
	fetches int
}

// NewCrumbAuth returns a CrumbAuth that obtains crumbs through fetch.
func NewCrumbAuth(next Authenticator, fetch func(ctx context.Context) (Crumb, error)) *CrumbAuth {
	if next == nil {
		next = NoAuth{}
	}
	return &CrumbAuth{next: next, fetch: fetch}
}

func (a *CrumbAuth) Authenticate(req *http.Request) error {
	if err := a.next.Authenticate(req); err != nil {
		return err
	}
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		return nil
	}

	c, err := a.crumb(req.Context())
	if err != nil {
		return err
	}
	req.Header.Set(c.Field, c.Value)
	return nil
}

func (a *CrumbAuth) crumb(ctx context.Context) (Crumb, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cached != nil {
		return *a.cached, nil
	}
	a.fetches++
	c, err := a.fetch(ctx)
	if err != nil {
		return Crumb{}, err
	}
	if c.Value == "" || c.Field == "" {
		return Crumb{}, errors.NewCIError(errors.KindRemoteRejected, OpCrumb,
			errors.New("crumb issuer returned an empty crumb"))
	}
	a.cached = &c
	return c, nil
}

// Invalidate drops the cached crumb so the next POST fetches a fresh one.
// Jenkins rejects a stale crumb with 403 once the session behind it expires.
func (a *CrumbAuth) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cached = nil
}

// Fetches returns how many times the crumb issuer was asked.
func (a *CrumbAuth) Fetches() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fetches
}

func decodeCrumb(resp *http.Response) (Crumb, error) {
	var c crumbIssuer
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		return Crumb{}, err
	}
	return Crumb{Field: c.CrumbRequestField, Value: c.Crumb}, nil
}
