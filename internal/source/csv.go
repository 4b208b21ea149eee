package source

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/job"
)

// CSV reads descriptors from a comma separated file with a header row.
type CSV struct {
	Path     string
	Defaults []string
}

// NewCSV creates a CSV source.
func NewCSV(path string, defaults []string) *CSV {
	return &CSV{Path: path, Defaults: defaults}
}

// Load parses the whole file.
func (c *CSV) Load(ctx context.Context) ([]job.Descriptor, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, errors.NewLoadError(c.Path, err)
	}
	defer func() { _ = f.Close() }()
	return readCSV(ctx, c.Path, f, c.Defaults)
}

func readCSV(ctx context.Context, path string, r io.Reader, defaults []string) ([]job.Descriptor, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.NewLoadError(path, errors.New("file is empty"))
	}
	if err != nil {
		return nil, errors.NewLoadError(path, err).WithRow(1)
	}
	t, err := newTable(path, header, defaults)
	if err != nil {
		return nil, err
	}

	var out []job.Descriptor
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewLoadError(path, err)
		}
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, errors.NewLoadError(path, err).WithRow(perr.Line)
			}
			return nil, errors.NewLoadError(path, err)
		}
		// The reader skips empty lines; report the line the record started on.
		num, _ := cr.FieldPos(0)
		d, skip, err := t.row(num, record)
		if err != nil {
			return nil, err
		}
		if !skip {
			out = append(out, d)
		}
	}
	return out, nil
}
