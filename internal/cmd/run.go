package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/shipyard/internal/ciclient"
	"github.com/Iron-Ham/shipyard/internal/config"
	"github.com/Iron-Ham/shipyard/internal/event"
	"github.com/Iron-Ham/shipyard/internal/job"
	"github.com/Iron-Ham/shipyard/internal/logging"
	"github.com/Iron-Ham/shipyard/internal/orchestrator"
	"github.com/Iron-Ham/shipyard/internal/runlock"
	"github.com/Iron-Ham/shipyard/internal/sink"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Trigger every job in the job list and wait for the builds",
	Long: `Trigger one build per job and environment, wait for all of them and
write the report.

The report goes to the terminal and to every --out file (.csv, .xlsx or
.json). Interrupting the run stops new builds from starting, stops waiting
on running ones and still writes what is known.

Exit status is 0 when every build reached a final state without error
(with --strict, only when every build succeeded), 1 otherwise, 2 when the
configuration or job list is invalid and 130 when interrupted.

Only one run at a time may use a given job list; a second run against
the same file exits with status 2.`,
	Example: `  shipyard run --jobs jobs.xlsx --env prod --out jobs_status.xlsx
  shipyard run -j deploy.yaml --only 'payments/*' --concurrency 10 --strict`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	addSourceFlags(runCmd)
	runCmd.Flags().IntP("concurrency", "n", 0, "maximum builds in flight (default from orchestrator.concurrency)")
	runCmd.Flags().StringSliceP("out", "o", nil, "report files; the extension picks the format (.csv, .xlsx, .json)")
	runCmd.Flags().Bool("strict", false, "exit non-zero unless every build succeeded")
	runCmd.Flags().Bool("no-terminal", false, "do not print the summary table")
	runCmd.Flags().BoolP("quiet", "q", false, "do not print per-job progress")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		cfg.Orchestrator.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("out") {
		cfg.Sink.Paths, _ = flags.GetStringSlice("out")
	}
	if noTerm, _ := flags.GetBool("no-terminal"); noTerm {
		cfg.Sink.Terminal = false
	}
	strict, _ := flags.GetBool("strict")
	quiet, _ := flags.GetBool("quiet")

	if cfg.CI.BaseURL == "" {
		return exitf(ExitInvalid, "ci.base_url is not set (config file or SHIPYARD_CI_BASE_URL)")
	}

	logOpts := cfg.Logging.Options()
	logOpts.Writer = cmd.ErrOrStderr()
	logger, err := logging.New(logOpts)
	if err != nil {
		return exitf(ExitInvalid, "opening log: %w", err)
	}
	defer func() { _ = logger.Close() }()

	src, err := openSource(cmd, cfg)
	if err != nil {
		return err
	}
	lock, err := runlock.New("", cfg.Source.Path)
	if err != nil {
		return &ExitError{Code: ExitInvalid, Err: err}
	}
	if err := lock.Acquire(); err != nil {
		return &ExitError{Code: ExitInvalid, Err: err}
	}
	defer func() { _ = lock.Release() }()

	sinks, closeSinks, err := buildSinks(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	bus := event.NewBus(event.WithLogger(logger))
	logCICalls(bus, logger)
	if !quiet {
		newProgress(cmd.ErrOrStderr()).subscribe(bus)
	}

	client, err := newClient(cfg, bus)
	if err != nil {
		return &ExitError{Code: ExitInvalid, Err: err}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.New(client, orchestratorConfig(cfg),
		orchestrator.WithLogger(logger), orchestrator.WithBus(bus))
	report, err := orch.RunSource(ctx, src, cfg.Orchestrator.Concurrency)
	if err != nil {
		return &ExitError{Code: ExitInvalid, Err: err}
	}
	interrupted := ctx.Err() != nil

	// Reports are written even after an interrupt.
	if err := sinks.Write(context.WithoutCancel(ctx), report); err != nil {
		logger.Error("writing report", "error", err.Error())
		return &ExitError{Code: ExitJobsFailed, Err: fmt.Errorf("writing report: %w", err)}
	}

	return exitStatus(report, strict, interrupted)
}

// exitStatus maps a finished run to the process exit code.
func exitStatus(report *job.Report, strict, interrupted bool) error {
	switch {
	case interrupted:
		return exitf(ExitInterrupted, "interrupted: %d of %d jobs did not finish", len(report.Failed()), report.Len())
	case strict && !report.Strict():
		return exitf(ExitJobsFailed, "%d of %d jobs did not succeed", report.Len()-report.Counts()[job.StateSuccess], report.Len())
	case !report.OK():
		return exitf(ExitJobsFailed, "%d of %d jobs failed to complete", len(report.Failed()), report.Len())
	default:
		return nil
	}
}

func orchestratorConfig(cfg *config.Config) orchestrator.Config {
	return orchestrator.Config{
		PollInterval:        cfg.Orchestrator.PollInterval,
		ResolveInterval:     cfg.Orchestrator.ResolveInterval,
		ResolveTimeout:      cfg.Orchestrator.ResolveTimeout,
		BuildTimeout:        cfg.Orchestrator.BuildTimeout,
		MaxTransportRetries: cfg.Orchestrator.MaxTransportRetries,
		EnvParam:            cfg.CI.EnvParam,
	}
}

func newClient(cfg *config.Config, bus *event.Bus) (ciclient.Client, error) {
	opts := []ciclient.Option{
		ciclient.WithRequestTimeout(cfg.CI.RequestTimeout),
		ciclient.WithInsecureSkipVerify(cfg.CI.InsecureSkipVerify),
		ciclient.WithCrumb(cfg.CI.Crumb),
	}
	if cfg.CI.Username != "" {
		opts = append(opts, ciclient.WithAuthenticator(ciclient.BasicAuth{User: cfg.CI.Username, Token: cfg.CI.Token}))
	}
	j, err := ciclient.NewJenkins(cfg.CI.BaseURL, opts...)
	if err != nil {
		return nil, err
	}
	return ciclient.Observe(j, bus), nil
}

// buildSinks assembles the report sinks. The returned func releases
// connections held by them.
func buildSinks(cmd *cobra.Command, cfg *config.Config) (sink.Multi, func(), error) {
	var sinks sink.Multi
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.Sink.Terminal {
		sinks = append(sinks, sink.NewTerminal(cmd.OutOrStdout()))
	}
	for _, p := range cfg.Sink.Paths {
		s, err := sink.ForPath(p)
		if err != nil {
			return nil, closeAll, &ExitError{Code: ExitInvalid, Err: err}
		}
		sinks = append(sinks, s)
	}
	if cfg.Sink.Etcd.Enabled() {
		e, err := sink.DialEtcd(cfg.Sink.Etcd.Endpoints, cfg.Sink.Etcd.Prefix,
			cfg.Sink.Etcd.DialTimeout, cfg.Sink.Etcd.WriteTimeout)
		if err != nil {
			return nil, closeAll, &ExitError{Code: ExitInvalid, Err: err}
		}
		closers = append(closers, func() { _ = e.Close() })
		sinks = append(sinks, e)
	}
	if g := cfg.Sink.GitLab; g.Enabled() {
		gl, err := sink.NewGitLab(g.URL, g.ProjectID, g.PipelineID, g.Token, g.RequestTimeout)
		if err != nil {
			return nil, closeAll, &ExitError{Code: ExitInvalid, Err: err}
		}
		sinks = append(sinks, gl)
	}
	return sinks, closeAll, nil
}

// logCICalls logs failed CI requests at debug level.
func logCICalls(bus *event.Bus, logger *logging.Logger) {
	bus.Subscribe(event.TypeCICall, func(e event.Event) {
		call, ok := e.(event.CICallEvent)
		if !ok || !call.Failed() {
			return
		}
		logger.Debug("ci request failed",
			"op", call.Operation, "job", call.Job, "kind", call.Kind.String(),
			"duration_ms", call.Duration.Milliseconds(), "error", call.Err.Error())
	})
}
