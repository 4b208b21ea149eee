package sink

import (
	"context"
	"encoding/json"
	"io"

	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/job"
)

// JSON writes the full report, including timings and error details.
type JSON struct {
	Path string
}

// NewJSON creates a JSON sink.
func NewJSON(path string) *JSON {
	return &JSON{Path: path}
}

// Write replaces the file at j.Path.
func (j *JSON) Write(_ context.Context, report *job.Report) error {
	if report == nil {
		report = &job.Report{}
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding json report")
	}
	data = append(data, '\n')
	err = writeAtomic(j.Path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	return errors.Wrapf(err, "writing json report %s", j.Path)
}
