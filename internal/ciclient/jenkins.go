package ciclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/job"
)

const defaultUserAgent = "shipyard"

// Jenkins is a Client for the Jenkins remote access API. It holds only
// immutable configuration and an *http.Client, so it is safe for concurrent use.
type Jenkins struct {
	base      *url.URL
	http      *http.Client
	auth      Authenticator
	userAgent string
}

var _ Client = (*Jenkins)(nil)

type jenkinsConfig struct {
	auth      Authenticator
	http      *http.Client
	timeout   time.Duration
	insecure  bool
	crumb     bool
	userAgent string
}

// Option configures a Jenkins client.
type Option func(*jenkinsConfig)

// WithAuthenticator sets the credentials capability. Defaults to NoAuth.
func WithAuthenticator(a Authenticator) Option {
	return func(c *jenkinsConfig) {
		c.auth = a
	}
}

// WithHTTPClient replaces the HTTP client. Timeout and TLS options are then ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *jenkinsConfig) {
		c.http = hc
	}
}

// WithRequestTimeout bounds every single request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *jenkinsConfig) {
		c.timeout = d
	}
}

// WithInsecureSkipVerify disables TLS verification for self-signed servers.
func WithInsecureSkipVerify(skip bool) Option {
	return func(c *jenkinsConfig) {
		c.insecure = skip
	}
}

// WithCrumb enables the CSRF crumb handshake for POST requests.
func WithCrumb(enabled bool) Option {
	return func(c *jenkinsConfig) {
		c.crumb = enabled
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *jenkinsConfig) {
		c.userAgent = ua
	}
}

// NewJenkins creates a client rooted at baseURL.
func NewJenkins(baseURL string, opts ...Option) (*Jenkins, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, errors.NewValidationError("CI base URL must be an absolute http(s) URL").
			WithField("ci.base_url").WithValue(baseURL)
	}

	cfg := jenkinsConfig{
		auth:      NoAuth{},
		timeout:   30 * time.Second,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	hc := cfg.http
	if hc == nil {
		// Jenkins ties crumbs to the session cookie unless API tokens are used.
		jar, _ := cookiejar.New(nil)
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.insecure {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for internal servers
		}
		hc = &http.Client{Transport: transport, Timeout: cfg.timeout, Jar: jar}
	}

	j := &Jenkins{base: base, http: hc, auth: cfg.auth, userAgent: cfg.userAgent}
	if cfg.crumb {
		j.auth = NewCrumbAuth(cfg.auth, j.fetchCrumb)
	}
	return j, nil
}

// BaseURL returns the server root without a trailing slash.
func (j *Jenkins) BaseURL() string {
	return j.base.String()
}

// JobURL returns the URL of a job. An absolute identity is used verbatim;
// a folder path "a/b" becomes {base}/job/a/job/b.
func (j *Jenkins) JobURL(identity string) string {
	identity = strings.TrimSpace(identity)
	if strings.HasPrefix(identity, "http://") || strings.HasPrefix(identity, "https://") {
		return strings.TrimRight(identity, "/")
	}

	var sb strings.Builder
	sb.WriteString(j.base.String())
	for _, seg := range strings.Split(identity, "/") {
		if seg == "" {
			continue
		}
		sb.WriteString("/job/")
		sb.WriteString(url.PathEscape(seg))
	}
	return sb.String()
}

// Trigger posts to buildWithParameters, or to build when there are no
// parameters. Jenkins answers 201 with a Location pointing at the queue item,
// or at the build itself when it started synchronously.
func (j *Jenkins) Trigger(ctx context.Context, identity string, params map[string]string) (job.TriggerHandle, error) {
	target := j.JobURL(identity) + "/build"
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		target = j.JobURL(identity) + "/buildWithParameters?" + q.Encode()
	}

	resp, err := j.do(ctx, OpTrigger, identity, http.MethodPost, target)
	if err != nil {
		return job.TriggerHandle{}, err
	}
	defer drain(resp)

	loc := resp.Header.Get("Location")
	if loc == "" {
		return job.TriggerHandle{}, errors.NewCIError(errors.KindRemoteRejected, OpTrigger,
			errors.New("accepted without a Location header")).WithJob(identity).WithStatusCode(resp.StatusCode)
	}

	h, err := parseLocation(identity, loc)
	if err != nil {
		return job.TriggerHandle{}, errors.NewCIError(errors.KindRemoteRejected, OpTrigger, err).
			WithJob(identity).WithStatusCode(resp.StatusCode)
	}
	return h, nil
}

// parseLocation extracts the queue ID from .../queue/item/{id}/ or the build
// number from .../job/{name}/{n}/.
func parseLocation(identity, loc string) (job.TriggerHandle, error) {
	u, err := url.Parse(loc)
	if err != nil {
		return job.TriggerHandle{}, fmt.Errorf("invalid Location %q: %w", loc, err)
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segs[len(segs)-1]

	if len(segs) >= 3 && segs[len(segs)-3] == "queue" && segs[len(segs)-2] == "item" && last != "" {
		return job.TriggerHandle{JobIdentity: identity, QueueID: last}, nil
	}
	if n, err := strconv.Atoi(last); err == nil && n > 0 && len(segs) >= 2 {
		return job.TriggerHandle{JobIdentity: identity, BuildNumber: n}, nil
	}
	return job.TriggerHandle{}, fmt.Errorf("unrecognized Location %q", loc)
}

// ResolveQueue reads the queue item. A handle that already carries a build
// number resolves without a request.
func (j *Jenkins) ResolveQueue(ctx context.Context, h job.TriggerHandle) (Resolution, error) {
	if b, ok := h.Build(); ok {
		return Resolution{Build: &b}, nil
	}
	if h.QueueID == "" {
		return Resolution{}, errors.NewCIError(errors.KindRemoteRejected, OpResolve,
			errors.New("trigger handle has neither queue ID nor build number")).WithJob(h.JobIdentity)
	}

	target := j.base.String() + "/queue/item/" + url.PathEscape(h.QueueID) + "/api/json"
	resp, err := j.do(ctx, OpResolve, h.JobIdentity, http.MethodGet, target)
	if err != nil {
		return Resolution{}, err
	}
	defer drain(resp)

	var item queueItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return Resolution{}, errors.NewCIError(errors.KindTransport, OpResolve,
			fmt.Errorf("decoding queue item %s: %w", h.QueueID, err)).WithJob(h.JobIdentity)
	}

	switch {
	case item.Cancelled:
		return Resolution{Cancelled: true, Why: item.Why}, nil
	case item.Executable != nil && item.Executable.Number > 0:
		return Resolution{Build: &job.BuildHandle{JobIdentity: h.JobIdentity, Number: item.Executable.Number}}, nil
	default:
		return Resolution{Why: item.Why}, nil
	}
}

// PollStatus reads the build's result. A build without a result is Running.
func (j *Jenkins) PollStatus(ctx context.Context, b job.BuildHandle) (job.BuildState, error) {
	target := j.JobURL(b.JobIdentity) + "/" + strconv.Itoa(b.Number) + "/api/json?tree=number,result,building"
	resp, err := j.do(ctx, OpPoll, b.JobIdentity, http.MethodGet, target)
	if err != nil {
		return job.StateUnknown, err
	}
	defer drain(resp)

	var info buildInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return job.StateUnknown, errors.NewCIError(errors.KindTransport, OpPoll,
			fmt.Errorf("decoding build %d: %w", b.Number, err)).WithJob(b.JobIdentity)
	}

	if info.Building || info.Result == nil {
		return job.StateRunning, nil
	}
	return job.ParseBuildState(*info.Result), nil
}

func (j *Jenkins) fetchCrumb(ctx context.Context) (Crumb, error) {
	// The crumb request itself only needs the wrapped credentials.
	inner := j.auth
	if ca, ok := inner.(*CrumbAuth); ok {
		inner = ca.next
	}
	resp, err := j.send(ctx, OpCrumb, "", http.MethodGet, j.base.String()+"/crumbIssuer/api/json", inner)
	if err != nil {
		return Crumb{}, err
	}
	defer drain(resp)

	c, err := decodeCrumb(resp)
	if err != nil {
		return Crumb{}, errors.NewCIError(errors.KindTransport, OpCrumb, err)
	}
	return c, nil
}

func (j *Jenkins) do(ctx context.Context, op, identity, method, target string) (*http.Response, error) {
	return j.send(ctx, op, identity, method, target, j.auth)
}

// send performs a request and maps every failure to a *errors.CIError. On
// success the caller owns the response body. A POST answered with 403 while a
// crumb is cached is sent once more with a freshly fetched crumb.
func (j *Jenkins) send(ctx context.Context, op, identity, method, target string, auth Authenticator) (*http.Response, error) {
	resp, err := j.sendOnce(ctx, op, identity, method, target, auth)
	if err != nil {
		return nil, err
	}
	if ca, ok := auth.(*CrumbAuth); ok && method == http.MethodPost && resp.StatusCode == http.StatusForbidden {
		drain(resp)
		ca.Invalidate()
		if resp, err = j.sendOnce(ctx, op, identity, method, target, auth); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	drain(resp)
	return nil, classifyStatus(op, identity, resp.StatusCode, strings.TrimSpace(string(body)))
}

// sendOnce performs one round trip. Any status is returned to the caller.
func (j *Jenkins) sendOnce(ctx context.Context, op, identity, method, target string, auth Authenticator) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, errors.NewCIError(errors.KindRemoteRejected, op, err).WithJob(identity)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", j.userAgent)

	if err := auth.Authenticate(req); err != nil {
		var ciErr *errors.CIError
		if errors.As(err, &ciErr) {
			return nil, err
		}
		return nil, classifyTransport(ctx, op, identity, err)
	}

	resp, err := j.http.Do(req)
	if err != nil {
		return nil, classifyTransport(ctx, op, identity, err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
