// Package source loads job descriptors from the files operators keep their
// deployment lists in: CSV exports, Excel workbooks and YAML.
//
// Tabular sources share one column layout. Each row is a job; the "Job Name"
// column is required and the rest become build parameters. A row without an
// environment column value falls back to the default environments given to
// [Open]. Any problem aborts the whole load with an *errors.LoadError naming
// the file, row and column.
package source

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/job"
)

// Source yields the descriptors of one run.
type Source interface {
	Load(ctx context.Context) ([]job.Descriptor, error)
}

// Option configures a file source.
type Option func(*options)

type options struct {
	sheet string
}

// WithSheet selects the workbook sheet read by XLSX sources. The first sheet
// is used otherwise.
func WithSheet(name string) Option {
	return func(o *options) {
		o.sheet = name
	}
}

// Open returns the source for path, chosen by file extension. defaults are
// the environments of rows that name none.
func Open(path string, defaults []string, opts ...Option) (Source, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return NewCSV(path, defaults), nil
	case ".xlsx":
		return NewXLSX(path, o.sheet, defaults), nil
	case ".yaml", ".yml":
		return NewYAML(path, defaults), nil
	default:
		return nil, errors.NewLoadError(path,
			errors.NewValidationError("unsupported file type, want .csv, .xlsx, .yaml or .yml").
				WithField("path").WithValue(path))
	}
}

// Static is a Source over a fixed list.
type Static []job.Descriptor

// Load returns the list.
func (s Static) Load(context.Context) ([]job.Descriptor, error) {
	return []job.Descriptor(s), nil
}
