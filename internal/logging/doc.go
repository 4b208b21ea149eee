// Package logging provides structured logging for shipyard runs.
//
// It wraps log/slog with a JSON handler and adds child loggers that carry the
// run, job and environment of the work being logged, so that the log of a
// run with dozens of concurrent builds can be filtered per pair afterwards.
//
// # Usage
//
//	logger, err := logging.New(logging.Options{Level: "INFO", File: "shipyard.log"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	jobLog := logger.WithRun(runID).WithJob("deploy/app-a").WithEnvironment("prod")
//	jobLog.Info("triggered", "queue_id", "1234")
//
// Without a File the logger writes to stderr. With a File the output goes
// through a [RotatingWriter] that rotates on size and optionally gzips old
// files.
//
// Tests use [NopLogger].
package logging
