package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/job"
)

// fakeGitLab serves the pipeline jobs and play endpoints, two jobs per page.
type fakeGitLab struct {
	mu       sync.Mutex
	srv      *httptest.Server
	token    string
	jobs     []GitLabJob
	failPlay map[int]int
	plays    map[int]string
	projects []string
	pages    int
}

func newFakeGitLab(t *testing.T, jobs ...GitLabJob) *fakeGitLab {
	t.Helper()
	f := &fakeGitLab{token: "glpat-1", jobs: jobs, failPlay: map[int]int{}, plays: map[int]string{}}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("PRIVATE-TOKEN") != f.token {
				http.Error(w, `{"message":"401 Unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/api/v4/projects/{project}/pipelines/{pipeline}/jobs", f.handleJobs)
	r.Post("/api/v4/projects/{project}/jobs/{id}/play", f.handlePlay)

	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGitLab) url() string { return f.srv.URL + "/api/v4" }

func (f *fakeGitLab) handleJobs(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages++
	f.projects = append(f.projects, chi.URLParam(r, "project"))

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	start := min((page-1)*2, len(f.jobs))
	end := min(start+2, len(f.jobs))
	if end < len(f.jobs) {
		w.Header().Set("X-Next-Page", strconv.Itoa(page+1))
	}
	_ = json.NewEncoder(w).Encode(f.jobs[start:end])
}

func (f *fakeGitLab) handlePlay(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	var body struct {
		Vars []gitlabVariable `json:"job_variables_attributes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.failPlay[id]; code != 0 {
		http.Error(w, `{"message":"boom"}`, code)
		return
	}
	for _, v := range body.Vars {
		if v.Key == GitLabStatusVariable {
			f.plays[id] = v.Value
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{}`))
}

func (f *fakeGitLab) played() map[int]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int]string, len(f.plays))
	for k, v := range f.plays {
		out[k] = v
	}
	return out
}

func deployReport() *job.Report {
	return &job.Report{
		RunID: "run-2",
		Results: []job.Result{
			{JobIdentity: "mono/deploy", Environment: "prod", State: job.StateSuccess},
			{JobIdentity: "mono/deploy", Environment: "stage", State: job.StateFailure},
			{JobIdentity: "web/deploy", Environment: "stage", State: job.StateSuccess},
			{JobIdentity: "api/deploy", Environment: "prod", ErrorKind: errors.KindPollTimeout},
		},
	}
}

func TestGitLab_Write(t *testing.T) {
	f := newFakeGitLab(t,
		GitLabJob{ID: 1, Name: "mono/deploy", Status: "manual"},
		GitLabJob{ID: 2, Name: "mono/deploy:prod", Status: "manual"},
		GitLabJob{ID: 3, Name: "web/deploy:stage", Status: "manual"},
		GitLabJob{ID: 4, Name: "web/deploy", Status: "success"},
		GitLabJob{ID: 5, Name: "lint", Status: "manual"},
		GitLabJob{ID: 6, Name: "api/deploy:prod", Status: "manual"},
	)

	g, err := NewGitLab(f.url(), "42", "991", "glpat-1", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, g.Write(context.Background(), deployReport()))

	assert.Equal(t, map[int]string{
		1: "failed",
		2: "success",
		3: "success",
		6: "failed",
	}, f.played())
	assert.Equal(t, 3, f.pages, "six jobs at two per page")
}

func TestGitLab_Jobs_ProjectPath(t *testing.T) {
	f := newFakeGitLab(t, GitLabJob{ID: 1, Name: "a", Status: "manual"})

	g, err := NewGitLab(f.url()+"/", "group/app", "991", "glpat-1", 5*time.Second)
	require.NoError(t, err)
	jobs, err := g.Jobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	require.Len(t, f.projects, 1)
	project, err := url.PathUnescape(f.projects[0])
	require.NoError(t, err)
	assert.Equal(t, "group/app", project)
}

func TestGitLab_BadToken(t *testing.T) {
	f := newFakeGitLab(t, GitLabJob{ID: 1, Name: "mono/deploy", Status: "manual"})

	g, err := NewGitLab(f.url(), "42", "991", "wrong", 5*time.Second)
	require.NoError(t, err)
	err = g.Write(context.Background(), deployReport())
	require.Error(t, err)
	assert.Equal(t, errors.KindAuth, errors.KindOf(err))
	assert.Empty(t, f.played())
}

func TestGitLab_PlayFailureDoesNotStopOthers(t *testing.T) {
	f := newFakeGitLab(t,
		GitLabJob{ID: 2, Name: "mono/deploy:prod", Status: "manual"},
		GitLabJob{ID: 3, Name: "web/deploy:stage", Status: "manual"},
	)
	f.failPlay[2] = http.StatusBadRequest

	g, err := NewGitLab(f.url(), "42", "991", "glpat-1", 5*time.Second)
	require.NoError(t, err)
	err = g.Write(context.Background(), deployReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mono/deploy:prod")
	assert.Equal(t, errors.KindRemoteRejected, errors.KindOf(err))
	assert.Equal(t, map[int]string{3: "success"}, f.played())
}

func TestGitLab_EmptyReport(t *testing.T) {
	f := newFakeGitLab(t, GitLabJob{ID: 1, Name: "a", Status: "manual"})

	g, err := NewGitLab(f.url(), "42", "991", "glpat-1", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, g.Write(context.Background(), &job.Report{}))
	require.NoError(t, g.Write(context.Background(), nil))
	assert.Zero(t, f.pages)
}

func TestNewGitLab_Invalid(t *testing.T) {
	_, err := NewGitLab("gitlab.local", "42", "991", "t", time.Second)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = NewGitLab("https://gitlab.local/api/v4", "", "991", "t", time.Second)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}
