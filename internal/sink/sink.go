// Package sink writes a finished run's report to files and the terminal,
// publishes it to etcd and plays the matching jobs of a GitLab pipeline.
package sink

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/job"
)

// Sink receives the report of a run once, after every task is done.
type Sink interface {
	Write(ctx context.Context, report *job.Report) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, report *job.Report) error

// Write calls f.
func (f Func) Write(ctx context.Context, report *job.Report) error {
	return f(ctx, report)
}

// Multi writes to every sink in order. A failing sink does not stop the
// others; all errors are joined.
type Multi []Sink

// Write writes report to every sink.
func (m Multi) Write(ctx context.Context, report *job.Report) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ForPath returns the file sink for path, chosen by extension.
func ForPath(path string) (Sink, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return NewCSV(path), nil
	case ".xlsx":
		return NewXLSX(path, ""), nil
	case ".json":
		return NewJSON(path), nil
	default:
		return nil, errors.NewValidationError("unsupported report type, want .csv, .xlsx or .json").
			WithField("out").WithValue(path)
	}
}
