package source

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/job"
)

// XLSX reads descriptors from one sheet of an Excel workbook. The first row
// of the sheet is the header.
type XLSX struct {
	Path     string
	Sheet    string
	Defaults []string
}

// NewXLSX creates an XLSX source. An empty sheet selects the first one.
func NewXLSX(path, sheet string, defaults []string) *XLSX {
	return &XLSX{Path: path, Sheet: sheet, Defaults: defaults}
}

// Load parses the sheet.
func (x *XLSX) Load(ctx context.Context) ([]job.Descriptor, error) {
	f, err := excelize.OpenFile(x.Path)
	if err != nil {
		return nil, errors.NewLoadError(x.Path, err)
	}
	defer func() { _ = f.Close() }()

	sheet := x.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.NewLoadError(x.Path, errors.New("workbook has no sheets"))
		}
		sheet = sheets[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, errors.NewLoadError(x.Path, fmt.Errorf("sheet %q not found", sheet))
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.NewLoadError(x.Path, err)
	}
	if len(rows) == 0 {
		return nil, errors.NewLoadError(x.Path, fmt.Errorf("sheet %q is empty", sheet))
	}

	t, err := newTable(x.Path, rows[0], x.Defaults)
	if err != nil {
		return nil, err
	}
	var out []job.Descriptor
	for i, cells := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewLoadError(x.Path, err)
		}
		d, skip, err := t.row(i+2, cells)
		if err != nil {
			return nil, err
		}
		if !skip {
			out = append(out, d)
		}
	}
	return out, nil
}
