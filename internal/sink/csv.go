package sink

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/job"
)

// CSV writes the report as a comma separated file.
type CSV struct {
	Path string
}

// NewCSV creates a CSV sink.
func NewCSV(path string) *CSV {
	return &CSV{Path: path}
}

// Write replaces the file at c.Path.
func (c *CSV) Write(_ context.Context, report *job.Report) error {
	err := writeAtomic(c.Path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(Header); err != nil {
			return err
		}
		if report != nil {
			for _, r := range report.Results {
				if err := cw.Write(Record(r)); err != nil {
					return err
				}
			}
		}
		cw.Flush()
		return cw.Error()
	})
	return errors.Wrapf(err, "writing csv report %s", c.Path)
}
