package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/job"
)

// GitLabStatusVariable carries the deployment outcome into a played job.
const GitLabStatusVariable = "SHIPYARD_STATUS"

const gitlabPageSize = 100

// GitLab reports deployment outcomes back to a GitLab pipeline. Each manual
// job of the pipeline named after a deployed Jenkins job is played with
// SHIPYARD_STATUS set to "success" or "failed".
//
// A GitLab job named "{job}:{env}" matches only that environment; a job
// named "{job}" matches every environment of that Jenkins job and reports
// success only when all of them succeeded.
type GitLab struct {
	base     *url.URL
	project  string
	pipeline string
	token    string
	http     *http.Client
}

// GitLabJob is the part of a pipeline job the sink reads.
type GitLabJob struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// NewGitLab creates a sink for one pipeline. baseURL is the API root,
// e.g. https://gitlab.com/api/v4.
func NewGitLab(baseURL, project, pipeline, token string, timeout time.Duration) (*GitLab, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Host == "" {
		return nil, errors.NewValidationError("GitLab URL must be absolute").
			WithField("sink.gitlab.url").WithValue(baseURL)
	}
	if project == "" || pipeline == "" {
		return nil, errors.NewValidationError("GitLab project and pipeline are required").
			WithField("sink.gitlab")
	}
	return &GitLab{
		base:     u,
		project:  project,
		pipeline: pipeline,
		token:    token,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// Write plays every matching manual job. A failed play does not stop the
// others; all errors are joined.
func (g *GitLab) Write(ctx context.Context, report *job.Report) error {
	if report == nil || report.Len() == 0 {
		return nil
	}
	jobs, err := g.Jobs(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, p := range planPlays(jobs, report.Results) {
		if err := g.play(ctx, p.job, p.success); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Jobs lists every job of the pipeline, following X-Next-Page.
func (g *GitLab) Jobs(ctx context.Context) ([]GitLabJob, error) {
	var all []GitLabJob
	page := "1"
	for page != "" {
		q := url.Values{"per_page": {strconv.Itoa(gitlabPageSize)}, "page": {page}}
		u := g.endpoint("projects", g.project, "pipelines", g.pipeline, "jobs") + "?" + q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, errors.Wrap(err, "building GitLab request")
		}
		resp, err := g.do(req, "gitlab list jobs")
		if err != nil {
			return nil, err
		}
		var batch []GitLabJob
		err = json.NewDecoder(resp.Body).Decode(&batch)
		_ = resp.Body.Close()
		if err != nil {
			return nil, errors.Wrap(err, "decoding GitLab pipeline jobs")
		}
		all = append(all, batch...)
		page = resp.Header.Get("X-Next-Page")
	}
	return all, nil
}

type gitlabVariable struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (g *GitLab) play(ctx context.Context, j GitLabJob, success bool) error {
	status := "failed"
	if success {
		status = "success"
	}
	body, err := json.Marshal(map[string][]gitlabVariable{
		"job_variables_attributes": {{Key: GitLabStatusVariable, Value: status}},
	})
	if err != nil {
		return errors.Wrap(err, "encoding GitLab play request")
	}

	u := g.endpoint("projects", g.project, "jobs", strconv.Itoa(j.ID), "play")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building GitLab request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.do(req, "gitlab play")
	if err != nil {
		var ce *errors.CIError
		if errors.As(err, &ce) {
			ce.WithJob(j.Name)
		}
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// do sends req with the token and returns the response only on 2xx.
func (g *GitLab) do(req *http.Request, op string) (*http.Response, error) {
	req.Header.Set("PRIVATE-TOKEN", g.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "shipyard")

	resp, err := g.http.Do(req)
	if err != nil {
		kind := errors.KindTransport
		if req.Context().Err() != nil {
			kind = errors.KindCancelled
		}
		return nil, errors.NewCIError(kind, op, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	_ = resp.Body.Close()

	kind := errors.KindRemoteRejected
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = errors.KindAuth
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		kind = errors.KindTransport
	}
	cause := fmt.Errorf("%s: %s", http.StatusText(resp.StatusCode), strings.TrimSpace(string(data)))
	return nil, errors.NewCIError(kind, op, cause).WithStatusCode(resp.StatusCode)
}

// endpoint joins escaped path segments onto the API root. Project may be a
// numeric ID or a "group/name" path.
func (g *GitLab) endpoint(segments ...string) string {
	u := *g.base
	raw := strings.TrimRight(u.EscapedPath(), "/")
	plain := strings.TrimRight(u.Path, "/")
	for _, s := range segments {
		raw += "/" + url.PathEscape(s)
		plain += "/" + s
	}
	u.Path, u.RawPath = plain, raw
	return u.String()
}

type gitlabPlay struct {
	job     GitLabJob
	success bool
}

// planPlays pairs manual jobs with the results they report on, in pipeline
// order. Jobs that match no result are left alone.
func planPlays(jobs []GitLabJob, results []job.Result) []gitlabPlay {
	ok := make(map[string]bool)
	for _, r := range results {
		success := r.OK() && r.State == job.StateSuccess
		for _, name := range []string{r.JobIdentity, r.JobIdentity + ":" + r.Environment} {
			prev, seen := ok[name]
			ok[name] = success && (prev || !seen)
		}
	}

	var plays []gitlabPlay
	for _, j := range jobs {
		if j.Status != "manual" {
			continue
		}
		if success, found := ok[j.Name]; found {
			plays = append(plays, gitlabPlay{job: j, success: success})
		}
	}
	return plays
}
