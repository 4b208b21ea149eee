package ciclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/jenkinsfake"
	"github.com/Iron-Ham/shipyard/internal/job"
)

func newClient(t *testing.T, s *jenkinsfake.Server, opts ...Option) *Jenkins {
	t.Helper()
	c, err := NewJenkins(s.URL(), opts...)
	require.NoError(t, err)
	return c
}

func TestNewJenkins_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "jenkins.local", "ftp://jenkins.local", "://"} {
		_, err := NewJenkins(u)
		assert.Error(t, err, u)
		assert.ErrorIs(t, err, errors.ErrInvalidInput, u)
	}
}

func TestJobURL(t *testing.T) {
	c, err := NewJenkins("https://ci.example.com/")
	require.NoError(t, err)

	tests := map[string]string{
		"app":                                  "https://ci.example.com/job/app",
		"folder/app":                           "https://ci.example.com/job/folder/job/app",
		"/folder//app/":                        "https://ci.example.com/job/folder/job/app",
		"my app":                               "https://ci.example.com/job/my%20app",
		"https://other.example.com/job/x/":     "https://other.example.com/job/x",
		"http://other.example.com/job/a/job/b": "http://other.example.com/job/a/job/b",
	}
	for in, want := range tests {
		assert.Equal(t, want, c.JobURL(in), in)
	}
}

func TestParseLocation(t *testing.T) {
	h, err := parseLocation("app", "https://ci/queue/item/1234/")
	require.NoError(t, err)
	assert.Equal(t, "1234", h.QueueID)
	assert.Zero(t, h.BuildNumber)

	h, err = parseLocation("app", "https://ci/job/app/42/")
	require.NoError(t, err)
	assert.Equal(t, 42, h.BuildNumber)
	assert.True(t, h.Resolved())

	_, err = parseLocation("app", "https://ci/job/app/")
	assert.Error(t, err)
}

func TestTrigger_Queued(t *testing.T) {
	s := jenkinsfake.New()
	defer s.Close()
	s.Script("deploy/app-a", jenkinsfake.Script{})

	c := newClient(t, s)
	h, err := c.Trigger(context.Background(), "deploy/app-a", map[string]string{
		"BRANCH": "release/1.0",
		"ENV":    "prod",
		"obc":    "true",
	})
	require.NoError(t, err)
	assert.Equal(t, "deploy/app-a", h.JobIdentity)
	assert.NotEmpty(t, h.QueueID)
	assert.False(t, h.Resolved())

	triggers := s.Triggers("deploy/app-a")
	require.Len(t, triggers, 1)
	assert.Equal(t, "release/1.0", triggers[0].Get("BRANCH"))
	assert.Equal(t, "prod", triggers[0].Get("ENV"))
	assert.Equal(t, "true", triggers[0].Get("obc"))
}

func TestTrigger_Synchronous(t *testing.T) {
	s := jenkinsfake.New()
	defer s.Close()
	s.Script("app", jenkinsfake.Script{Synchronous: true, FirstBuild: 42})

	c := newClient(t, s)
	h, err := c.Trigger(context.Background(), "app", nil)
	require.NoError(t, err)
	assert.Equal(t, 42, h.BuildNumber)

	// Already resolved: no queue request is made.
	res, err := c.ResolveQueue(context.Background(), h)
	require.NoError(t, err)
	require.NotNil(t, res.Build)
	assert.Equal(t, 42, res.Build.Number)
	assert.Zero(t, s.QueuePolls("app"))
}

func TestTrigger_AbsoluteURLIdentity(t *testing.T) {
	s := jenkinsfake.New()
	defer s.Close()
	s.Script("team/app", jenkinsfake.Script{})

	c := newClient(t, s)
	identity := s.JobURL("team/app")
	h, err := c.Trigger(context.Background(), identity, map[string]string{"ENV": "dev"})
	require.NoError(t, err)
	assert.Equal(t, identity, h.JobIdentity)
	assert.Len(t, s.Triggers("team/app"), 1)
}

func TestTrigger_Errors(t *testing.T) {
	tests := []struct {
		name       string
		script     jenkinsfake.Script
		identity   string
		wantKind   errors.Kind
		wantStatus int
	}{
		{"bad request", jenkinsfake.Script{TriggerStatus: http.StatusBadRequest}, "app", errors.KindRemoteRejected, 400},
		{"conflict", jenkinsfake.Script{TriggerStatus: http.StatusConflict}, "app", errors.KindRemoteRejected, 409},
		{"server error", jenkinsfake.Script{TriggerStatus: http.StatusBadGateway}, "app", errors.KindTransport, 502},
		{"throttled", jenkinsfake.Script{TriggerStatus: http.StatusTooManyRequests}, "app", errors.KindTransport, 429},
		{"no location", jenkinsfake.Script{OmitLocation: true}, "app", errors.KindRemoteRejected, 201},
		{"unknown job", jenkinsfake.Script{}, "missing", errors.KindRemoteRejected, 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := jenkinsfake.New()
			defer s.Close()
			s.Script("app", tt.script)

			_, err := newClient(t, s).Trigger(context.Background(), tt.identity, map[string]string{"ENV": "prod"})
			require.Error(t, err)

			var ciErr *errors.CIError
			require.ErrorAs(t, err, &ciErr)
			assert.Equal(t, tt.wantKind, ciErr.Kind)
			assert.Equal(t, tt.wantStatus, ciErr.StatusCode)
			assert.Equal(t, OpTrigger, ciErr.Operation)
			assert.Equal(t, tt.identity, ciErr.Job)
		})
	}
}

func TestAuth(t *testing.T) {
	s := jenkinsfake.New()
	defer s.Close()
	s.Script("app", jenkinsfake.Script{})
	s.RequireAuth("deployer", "api-token")

	_, err := newClient(t, s).Trigger(context.Background(), "app", nil)
	assert.Equal(t, errors.KindAuth, errors.KindOf(err))
	assert.False(t, errors.IsRetryable(err))

	c := newClient(t, s, WithAuthenticator(BasicAuth{User: "deployer", Token: "api-token"}))
	_, err = c.Trigger(context.Background(), "app", nil)
	assert.NoError(t, err)
}

func TestCrumb(t *testing.T) {
	s := jenkinsfake.New()
	defer s.Close()
	s.Script("app", jenkinsfake.Script{})
	s.RequireCrumb("abc123")

	_, err := newClient(t, s).Trigger(context.Background(), "app", nil)
	require.Error(t, err)
	assert.Equal(t, errors.KindAuth, errors.KindOf(err), "missing crumb is a 403")

	c := newClient(t, s, WithCrumb(true))
	for i := 0; i < 3; i++ {
		_, err := c.Trigger(context.Background(), "app", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, s.CrumbRequests(), "crumb is fetched once and cached")
}

func TestCrumb_Rotated(t *testing.T) {
	s := jenkinsfake.New()
	defer s.Close()
	s.Script("app", jenkinsfake.Script{})
	s.RequireCrumb("first")

	c := newClient(t, s, WithCrumb(true))
	_, err := c.Trigger(context.Background(), "app", nil)
	require.NoError(t, err)

	// The server expires the session; the cached crumb is now stale.
	s.RequireCrumb("second")
	_, err = c.Trigger(context.Background(), "app", nil)
	require.NoError(t, err, "a stale crumb is replaced and the trigger resent")
	assert.Equal(t, 2, s.CrumbRequests())
	assert.Len(t, s.Triggers("app"), 2, "the rejected attempt never reached the job")

	_, err = c.Trigger(context.Background(), "app", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, s.CrumbRequests(), "the fresh crumb is cached again")
}

func TestCrumb_ForbiddenAfterRefresh(t *testing.T) {
	s := jenkinsfake.New()
	defer s.Close()
	s.Script("app", jenkinsfake.Script{TriggerStatus: http.StatusForbidden})
	s.RequireCrumb("abc123")

	c := newClient(t, s, WithCrumb(true))
	_, err := c.Trigger(context.Background(), "app", nil)
	assert.Equal(t, errors.KindAuth, errors.KindOf(err), "a second 403 is reported")
	assert.Equal(t, 2, s.CrumbRequests(), "only one refresh per request")
}

func TestResolveQueue(t *testing.T) {
	s := jenkinsfake.New()
	defer s.Close()
	s.Script("app", jenkinsfake.Script{QueuePolls: 2, FirstBuild: 42})

	c := newClient(t, s)
	ctx := context.Background()
	h, err := c.Trigger(ctx, "app", map[string]string{"ENV": "prod"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := c.ResolveQueue(ctx, h)
		require.NoError(t, err)
		assert.True(t, res.Pending())
		assert.NotEmpty(t, res.Why)
	}

	res, err := c.ResolveQueue(ctx, h)
	require.NoError(t, err)
	require.NotNil(t, res.Build)
	assert.Equal(t, job.BuildHandle{JobIdentity: "app", Number: 42}, *res.Build)
}

func TestResolveQueue_Cancelled(t *testing.T) {
	s := jenkinsfake.New()
	defer s.Close()
	s.Script("app", jenkinsfake.Script{CancelQueue: true})

	c := newClient(t, s)
	h, err := c.Trigger(context.Background(), "app", nil)
	require.NoError(t, err)

	res, err := c.ResolveQueue(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Nil(t, res.Build)
	assert.False(t, res.Pending())
}

func TestResolveQueue_EmptyHandle(t *testing.T) {
	c, err := NewJenkins("http://127.0.0.1:1")
	require.NoError(t, err)
	_, err = c.ResolveQueue(context.Background(), job.TriggerHandle{JobIdentity: "app"})
	assert.Equal(t, errors.KindRemoteRejected, errors.KindOf(err))
}

func TestPollStatus(t *testing.T) {
	tests := []struct {
		result string
		want   job.BuildState
	}{
		{"SUCCESS", job.StateSuccess},
		{"FAILURE", job.StateFailure},
		{"UNSTABLE", job.StateUnstable},
		{"ABORTED", job.StateAborted},
		{"NOT_BUILT", job.StateAborted},
	}

	for _, tt := range tests {
		t.Run(tt.result, func(t *testing.T) {
			s := jenkinsfake.New()
			defer s.Close()
			s.Script("app", jenkinsfake.Script{Synchronous: true, RunningPolls: 1, Result: tt.result})

			c := newClient(t, s)
			h, err := c.Trigger(context.Background(), "app", nil)
			require.NoError(t, err)
			b, _ := h.Build()

			state, err := c.PollStatus(context.Background(), b)
			require.NoError(t, err)
			assert.Equal(t, job.StateRunning, state)

			state, err = c.PollStatus(context.Background(), b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestPollStatus_TransportFailure(t *testing.T) {
	s := jenkinsfake.New()
	defer s.Close()
	s.Script("app", jenkinsfake.Script{Synchronous: true, PollFailures: 1})

	c := newClient(t, s)
	h, _ := c.Trigger(context.Background(), "app", nil)
	b, _ := h.Build()

	_, err := c.PollStatus(context.Background(), b)
	assert.True(t, errors.IsRetryable(err))

	state, err := c.PollStatus(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, job.StateSuccess, state)
}

func TestRequest_Cancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	c, err := NewJenkins(srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.PollStatus(ctx, job.BuildHandle{JobIdentity: "app", Number: 1})
	assert.Equal(t, errors.KindCancelled, errors.KindOf(err))
}

func TestRequest_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewJenkins(url, WithRequestTimeout(time.Second))
	require.NoError(t, err)
	_, err = c.Trigger(context.Background(), "app", nil)
	assert.Equal(t, errors.KindTransport, errors.KindOf(err))
}

func TestRequest_UserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.Header().Set("Location", "/queue/item/1/")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c, err := NewJenkins(srv.URL, WithUserAgent("shipyard-test"), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	h, err := c.Trigger(context.Background(), "app", nil)
	require.NoError(t, err)
	assert.Equal(t, "1", h.QueueID)
	assert.Equal(t, "shipyard-test", got)
}
