// Package jenkinsfake is an in-process emulation of the parts of the Jenkins
// remote access API that shipyard uses: triggering builds, the build queue,
// build status and the crumb issuer. Tests script per-job behavior and then
// inspect what the client did.
package jenkinsfake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Script describes how the fake treats one job.
type Script struct {
	// TriggerStatus overrides the trigger response status (default 201).
	TriggerStatus int
	// OmitLocation drops the Location header from a successful trigger.
	OmitLocation bool
	// Synchronous answers the trigger with the build URL instead of a queue item.
	Synchronous bool
	// QueuePolls is how many queue reads report "waiting" before the build starts.
	QueuePolls int
	// CancelQueue makes the queue item report cancelled.
	CancelQueue bool
	// FirstBuild is the first build number handed out (default 1).
	FirstBuild int
	// PollFailures is how many leading build reads answer PollFailureStatus.
	PollFailures int
	// PollFailureStatus defaults to 503.
	PollFailureStatus int
	// RunningPolls is how many build reads report building before the result.
	RunningPolls int
	// Result is the final Jenkins result string (default SUCCESS). "-" never finishes.
	Result string
}

// NeverFinish keeps a build running forever.
const NeverFinish = "-"

type fakeJob struct {
	script    Script
	nextBuild int
	triggers  []url.Values
	builds    map[int]*fakeBuild
}

type fakeBuild struct {
	number int
	polls  int
}

type queueEntry struct {
	id    int
	job   string
	polls int
	build int
}

// Server is a fake Jenkins. It is safe for concurrent use.
type Server struct {
	mu     sync.Mutex
	srv    *httptest.Server
	jobs   map[string]*fakeJob
	queue  map[int]*queueEntry
	nextQ  int
	user   string
	token  string
	crumb  string
	crumbs int
	polls  map[string]int
}

// New starts a fake server. Call Close when done.
func New() *Server {
	s := &Server{
		jobs:  make(map[string]*fakeJob),
		queue: make(map[int]*queueEntry),
		nextQ: 100,
		polls: make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(s.authenticate)
	r.Get("/crumbIssuer/api/json", s.handleCrumb)
	r.Get("/queue/item/{id}/api/json", s.handleQueueItem)
	r.Post("/job/*", s.handleTrigger)
	r.Get("/job/*", s.handleBuild)

	s.srv = httptest.NewServer(r)
	return s
}

// URL returns the server root.
func (s *Server) URL() string {
	return s.srv.URL
}

// JobURL returns the absolute URL of a job path such as "folder/app".
func (s *Server) JobURL(path string) string {
	return s.srv.URL + "/job/" + strings.Join(strings.Split(path, "/"), "/job/")
}

// Close shuts the server down.
func (s *Server) Close() {
	s.srv.Close()
}

// Script registers behavior for a job path. Unscripted jobs answer 404.
func (s *Server) Script(path string, sc Script) {
	s.mu.Lock()
	defer s.mu.Unlock()

	first := sc.FirstBuild
	if first <= 0 {
		first = 1
	}
	s.jobs[path] = &fakeJob{script: sc, nextBuild: first, builds: make(map[int]*fakeBuild)}
}

// RequireAuth makes every request need basic auth with user and token.
func (s *Server) RequireAuth(user, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user, s.token = user, token
}

// RequireCrumb makes POST requests need the Jenkins-Crumb header.
func (s *Server) RequireCrumb(crumb string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crumb = crumb
}

// Triggers returns the parameters of every trigger of a job, in order.
func (s *Server) Triggers(path string) []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[path]; ok {
		return append([]url.Values(nil), j.triggers...)
	}
	return nil
}

// QueuePolls returns how often the queue was read for a job.
func (s *Server) QueuePolls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls["queue:"+path]
}

// BuildPolls returns how often build status was read for a job.
func (s *Server) BuildPolls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls["build:"+path]
}

// CrumbRequests returns how often the crumb issuer was called.
func (s *Server) CrumbRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crumbs
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		user, token, crumb := s.user, s.token, s.crumb
		s.mu.Unlock()

		if user != "" {
			u, p, ok := r.BasicAuth()
			if !ok || u != user || p != token {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		if crumb != "" && r.Method == http.MethodPost && r.Header.Get("Jenkins-Crumb") != crumb {
			http.Error(w, "No valid crumb was included in the request", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCrumb(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.crumbs++
	crumb := s.crumb
	s.mu.Unlock()

	if crumb == "" {
		http.Error(w, "crumb issuer disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{
		"_class":            "hudson.security.csrf.DefaultCrumbIssuer",
		"crumb":             crumb,
		"crumbRequestField": "Jenkins-Crumb",
	})
}

// splitJobPath turns "a/job/b/buildWithParameters" into ("a/b", ["buildWithParameters"]).
func splitJobPath(wildcard string) (string, []string) {
	segs := strings.Split(strings.Trim(wildcard, "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return "", nil
	}
	name := segs[0]
	i := 1
	for i+1 < len(segs) && segs[i] == "job" {
		name += "/" + segs[i+1]
		i += 2
	}
	return name, segs[i:]
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	path, rest := splitJobPath(chi.URLParam(r, "*"))
	if len(rest) != 1 || (rest[0] != "build" && rest[0] != "buildWithParameters") {
		http.Error(w, "unknown endpoint", http.StatusNotFound)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[path]
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	j.triggers = append(j.triggers, r.URL.Query())

	if st := j.script.TriggerStatus; st != 0 && (st < 200 || st > 299) {
		http.Error(w, "trigger refused", st)
		return
	}

	if !j.script.OmitLocation {
		if j.script.Synchronous {
			n := s.startBuild(j)
			w.Header().Set("Location", fmt.Sprintf("%s/%d/", s.JobURL(path), n))
		} else {
			s.nextQ++
			s.queue[s.nextQ] = &queueEntry{id: s.nextQ, job: path}
			w.Header().Set("Location", fmt.Sprintf("%s/queue/item/%d/", s.srv.URL, s.nextQ))
		}
	}

	status := http.StatusCreated
	if j.script.TriggerStatus != 0 {
		status = j.script.TriggerStatus
	}
	w.WriteHeader(status)
}

// startBuild must be called with mu held.
func (s *Server) startBuild(j *fakeJob) int {
	n := j.nextBuild
	j.nextBuild++
	j.builds[n] = &fakeBuild{number: n}
	return n
}

func (s *Server) handleQueueItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "bad queue id", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queue[id]
	if !ok {
		http.Error(w, "queue item not found", http.StatusNotFound)
		return
	}
	j := s.jobs[q.job]
	q.polls++
	s.polls["queue:"+q.job]++

	resp := map[string]any{"id": q.id, "cancelled": false}
	switch {
	case j.script.CancelQueue:
		resp["cancelled"] = true
	case q.polls > j.script.QueuePolls:
		if q.build == 0 {
			q.build = s.startBuild(j)
		}
		resp["executable"] = map[string]any{
			"number": q.build,
			"url":    fmt.Sprintf("%s/%d/", s.JobURL(q.job), q.build),
		}
	default:
		resp["why"] = "Waiting for next available executor"
	}
	writeJSON(w, resp)
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	path, rest := splitJobPath(chi.URLParam(r, "*"))
	if len(rest) != 3 || rest[1] != "api" || rest[2] != "json" {
		http.Error(w, "unknown endpoint", http.StatusNotFound)
		return
	}
	n, err := strconv.Atoi(rest[0])
	if err != nil {
		http.Error(w, "bad build number", http.StatusNotFound)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[path]
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	b, ok := j.builds[n]
	if !ok {
		http.Error(w, "build not found", http.StatusNotFound)
		return
	}
	b.polls++
	s.polls["build:"+path]++

	sc := j.script
	if b.polls <= sc.PollFailures {
		status := sc.PollFailureStatus
		if status == 0 {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, "injected failure", status)
		return
	}

	result := sc.Result
	if result == "" {
		result = "SUCCESS"
	}
	if result == NeverFinish || b.polls-sc.PollFailures <= sc.RunningPolls {
		writeJSON(w, map[string]any{"number": n, "building": true, "result": nil})
		return
	}
	writeJSON(w, map[string]any{"number": n, "building": false, "result": result})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
