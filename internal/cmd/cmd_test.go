package cmd

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/jenkinsfake"
	"github.com/Iron-Ham/shipyard/internal/job"
	"github.com/Iron-Ham/shipyard/internal/runlock"
	"github.com/Iron-Ham/shipyard/internal/testutil"
)

// executeCommand runs the root command with args and returns captured output
func executeCommand(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err = rootCmd.Execute()
	return out.String(), errOut.String(), err
}

// resetFlags restores every flag to its default so tests do not leak into
// each other through the package-level commands.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	return testutil.WriteFile(t, "config.yaml", fmt.Sprintf(`
ci:
  base_url: %q
  username: deployer
  token: s3cret
orchestrator:
  concurrency: 4
  poll_interval: 5ms
  resolve_interval: 5ms
  resolve_timeout: 5s
  build_timeout: 5s
sink:
  terminal: false
logging:
  level: error
`, baseURL))
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	return exitErr.Code
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "shipyard", rootCmd.Use)

	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "validate", "config"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestRun_EndToEnd(t *testing.T) {
	srv := jenkinsfake.New()
	defer srv.Close()
	srv.Script("app-a", jenkinsfake.Script{FirstBuild: 42, QueuePolls: 1, RunningPolls: 1})
	srv.Script("app-b", jenkinsfake.Script{Result: "FAILURE"})
	srv.RequireAuth("deployer", "s3cret")

	cfgPath := writeConfig(t, srv.URL())
	jobs := testutil.WriteFile(t, "jobs.csv", "AppName,Job Name,Branch,OBC\npay,app-a,main,yes\n,app-b,dev,no\n")
	out := filepath.Join(t.TempDir(), "status.csv")

	stdout, stderr, err := executeCommand(t, "run", "--config", cfgPath, "--jobs", jobs, "--env", "prod", "--out", out)
	require.NoError(t, err, stderr)
	assert.Empty(t, stdout, "terminal sink disabled")
	assert.Contains(t, stderr, "app-a @ prod: Success #42")
	assert.Contains(t, stderr, "app-b @ prod: Failure #1")

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"pay", "app-a", "prod", "", "", "", "true", "", "main", "SUCCESS", "42", "", ""}, records[1])
	assert.Equal(t, "FAILURE", records[2][9])

	triggers := srv.Triggers("app-a")
	require.Len(t, triggers, 1)
	assert.Equal(t, "prod", triggers[0].Get("ENV"))
	assert.Equal(t, "true", triggers[0].Get("obc"))
	assert.Equal(t, "pay", triggers[0].Get("AppName"))
	assert.False(t, srv.Triggers("app-b")[0].Has("AppName"))
}

func TestRun_GitLabStages(t *testing.T) {
	srv := jenkinsfake.New()
	defer srv.Close()
	srv.Script("app-a", jenkinsfake.Script{})
	srv.Script("app-b", jenkinsfake.Script{Result: "FAILURE"})
	srv.RequireAuth("deployer", "s3cret")

	var (
		mu     sync.Mutex
		played = map[string]string{}
	)
	r := chi.NewRouter()
	r.Get("/api/v4/projects/{project}/pipelines/{pipeline}/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("PRIVATE-TOKEN") != "glpat-1" || chi.URLParam(r, "pipeline") != "991" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`[{"id":7,"name":"app-a","status":"manual"},{"id":8,"name":"app-b:prod","status":"manual"}]`))
	})
	r.Post("/api/v4/projects/{project}/jobs/{id}/play", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Vars []struct{ Key, Value string } `json:"job_variables_attributes"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		defer mu.Unlock()
		for _, v := range body.Vars {
			played[chi.URLParam(r, "id")] = v.Value
		}
	})
	gl := httptest.NewServer(r)
	defer gl.Close()

	t.Setenv("SHIPYARD_SINK_GITLAB_URL", gl.URL+"/api/v4")
	t.Setenv("SHIPYARD_SINK_GITLAB_PROJECT_ID", "42")
	t.Setenv("SHIPYARD_SINK_GITLAB_PIPELINE_ID", "991")
	t.Setenv("SHIPYARD_SINK_GITLAB_TOKEN", "glpat-1")

	cfgPath := writeConfig(t, srv.URL())
	jobs := testutil.WriteFile(t, "jobs.csv", "Job Name\napp-a\napp-b\n")

	_, stderr, err := executeCommand(t, "run", "-c", cfgPath, "-j", jobs, "-e", "prod")
	require.NoError(t, err, stderr)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]string{"7": "success", "8": "failed"}, played)
}

func TestRun_StrictAndTerminal(t *testing.T) {
	srv := jenkinsfake.New()
	defer srv.Close()
	srv.Script("app", jenkinsfake.Script{Result: "UNSTABLE"})
	srv.RequireAuth("deployer", "s3cret")

	cfgPath := writeConfig(t, srv.URL())
	jobs := testutil.WriteFile(t, "jobs.yaml", "jobs:\n  - job: app\n    environments: [stage]\n")

	_, _, err := executeCommand(t, "run", "-c", cfgPath, "-j", jobs, "-q")
	assert.Equal(t, ExitOK, exitCode(t, err))

	_, _, err = executeCommand(t, "run", "-c", cfgPath, "-j", jobs, "-q", "--strict")
	assert.Equal(t, ExitJobsFailed, exitCode(t, err))

	// Default config keeps the terminal table on.
	cfg2 := testutil.WriteFile(t, "config.yaml", fmt.Sprintf("ci:\n  base_url: %q\n  username: deployer\n  token: s3cret\norchestrator:\n  poll_interval: 5ms\n  resolve_interval: 5ms\nlogging:\n  level: error\n", srv.URL()))
	stdout, _, err := executeCommand(t, "run", "-c", cfg2, "-j", jobs, "-q")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Unstable")
	assert.Contains(t, stdout, "1 job in")
}

func TestRun_AuthFailureIsReported(t *testing.T) {
	srv := jenkinsfake.New()
	defer srv.Close()
	srv.Script("app", jenkinsfake.Script{})
	srv.RequireAuth("someone", "else")

	cfgPath := writeConfig(t, srv.URL())
	jobs := testutil.WriteFile(t, "jobs.csv", "Job Name,Env\napp,prod\n")
	out := filepath.Join(t.TempDir(), "status.json")

	_, stderr, err := executeCommand(t, "run", "-c", cfgPath, "-j", jobs, "-o", out)
	assert.Equal(t, ExitJobsFailed, exitCode(t, err))
	assert.Contains(t, stderr, "(auth)")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"error": "auth"`)
}

func TestRun_InvalidInput(t *testing.T) {
	srv := jenkinsfake.New()
	defer srv.Close()
	srv.Script("app", jenkinsfake.Script{})
	cfgPath := writeConfig(t, srv.URL())

	tests := []struct {
		name string
		args []string
	}{
		{"no job list", []string{"run", "-c", cfgPath}},
		{"missing file", []string{"run", "-c", cfgPath, "-j", filepath.Join(t.TempDir(), "nope.csv")}},
		{"bad boolean", []string{"run", "-c", cfgPath, "-j",
			testutil.WriteFile(t, "jobs.csv", "Job Name,Env,OBC\napp,prod,maybe\n")}},
		{"zero concurrency", []string{"run", "-c", cfgPath, "-n", "0", "-j",
			testutil.WriteFile(t, "jobs.csv", "Job Name,Env\napp,prod\n")}},
		{"bad report type", []string{"run", "-c", cfgPath, "-o", "report.txt", "-j",
			testutil.WriteFile(t, "jobs.csv", "Job Name,Env\napp,prod\n")}},
		{"bad pattern", []string{"run", "-c", cfgPath, "--only", "[x", "-j",
			testutil.WriteFile(t, "jobs.csv", "Job Name,Env\napp,prod\n")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeCommand(t, tt.args...)
			assert.Equal(t, ExitInvalid, exitCode(t, err))
		})
	}
	assert.Empty(t, srv.Triggers("app"), "nothing may be triggered")
}

func TestRun_MissingBaseURL(t *testing.T) {
	cfgPath := testutil.WriteFile(t, "config.yaml", "logging:\n  level: error\n")
	jobs := testutil.WriteFile(t, "jobs.csv", "Job Name,Env\napp,prod\n")

	_, _, err := executeCommand(t, "run", "-c", cfgPath, "-j", jobs)
	assert.Equal(t, ExitInvalid, exitCode(t, err))
	assert.ErrorContains(t, err, "ci.base_url")
}

func TestRun_JobListLocked(t *testing.T) {
	srv := jenkinsfake.New()
	defer srv.Close()
	srv.Script("app", jenkinsfake.Script{})
	cfgPath := writeConfig(t, srv.URL())
	jobs := testutil.WriteFile(t, "jobs.csv", "Job Name,Env\napp,prod\n")

	held, err := runlock.New("", jobs)
	require.NoError(t, err)
	require.NoError(t, held.Acquire())

	_, _, err = executeCommand(t, "run", "-c", cfgPath, "-j", jobs, "--no-terminal")
	assert.Equal(t, ExitInvalid, exitCode(t, err))
	assert.True(t, errors.Is(err, runlock.ErrHeld))
	assert.Empty(t, srv.Triggers("app"))

	require.NoError(t, held.Release())
	_, _, err = executeCommand(t, "run", "-c", cfgPath, "-j", jobs, "--no-terminal")
	assert.NoError(t, err)
	assert.Len(t, srv.Triggers("app"), 1)
}

func TestValidate(t *testing.T) {
	cfgPath := testutil.WriteFile(t, "config.yaml", "logging:\n  level: error\n")
	jobs := testutil.WriteFile(t, "jobs.csv",
		"Job Name,Env,Branch\npayments/api,\"dev,prod\",main\npayments/web,,main\nother,,x\n")

	stdout, _, err := executeCommand(t, "validate", "-c", cfgPath, "-j", jobs, "-e", "stage", "--only", "payments/*")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "  1  payments/api @ dev  ENV=dev BRANCH=main", lines[0])
	assert.Equal(t, "  2  payments/api @ prod  ENV=prod BRANCH=main", lines[1])
	assert.Equal(t, "  3  payments/web @ stage  ENV=stage BRANCH=main", lines[2])
	assert.Equal(t, "2 jobs, 3 builds", lines[4])

	_, _, err = executeCommand(t, "validate", "-c", cfgPath, "-j",
		testutil.WriteFile(t, "bad.csv", "Env\nprod\n"))
	assert.Equal(t, ExitInvalid, exitCode(t, err))
}

func TestConfigShow(t *testing.T) {
	cfgPath := writeConfig(t, "https://ci.example.com")

	stdout, _, err := executeCommand(t, "config", "show", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "# Config file: "+cfgPath)
	assert.Contains(t, stdout, "base_url: https://ci.example.com")
	assert.Contains(t, stdout, "********")
	assert.NotContains(t, stdout, "s3cret")

	stdout, _, err = executeCommand(t, "config", "path", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Active config: "+cfgPath)
}

func TestConfigShow_Invalid(t *testing.T) {
	cfgPath := testutil.WriteFile(t, "config.yaml", "orchestrator:\n  concurrency: 0\n")
	_, _, err := executeCommand(t, "config", "show", "-c", cfgPath)
	assert.Equal(t, ExitInvalid, exitCode(t, err))
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestExitStatus(t *testing.T) {
	ok := job.Result{State: job.StateSuccess}
	unstable := job.Result{State: job.StateUnstable}
	failed := job.Result{State: job.StateUnknown, ErrorKind: errors.KindTransport}

	tests := []struct {
		name        string
		results     []job.Result
		strict      bool
		interrupted bool
		want        int
	}{
		{"all success", []job.Result{ok, ok}, false, false, ExitOK},
		{"unstable is complete", []job.Result{ok, unstable}, false, false, ExitOK},
		{"strict rejects unstable", []job.Result{ok, unstable}, true, false, ExitJobsFailed},
		{"error", []job.Result{ok, failed}, false, false, ExitJobsFailed},
		{"interrupted", []job.Result{ok, failed}, false, true, ExitInterrupted},
		{"empty", nil, true, false, ExitOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := exitStatus(&job.Report{Results: tt.results, StartedAt: time.Now()}, tt.strict, tt.interrupted)
			assert.Equal(t, tt.want, exitCode(t, err))
		})
	}
}

func TestExitError(t *testing.T) {
	assert.Equal(t, "exit status 3", (&ExitError{Code: 3}).Error())
	cause := errors.New("boom")
	err := &ExitError{Code: 1, Err: cause}
	assert.Equal(t, "boom", err.Error())
	assert.ErrorIs(t, err, cause)
}
