package sink

import (
	"context"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/job"
)

// DefaultSheet is the sheet name of XLSX reports.
const DefaultSheet = "Build Status"

// XLSX writes the report as an Excel workbook with a single sheet.
type XLSX struct {
	Path  string
	Sheet string
}

// NewXLSX creates an XLSX sink. An empty sheet uses DefaultSheet.
func NewXLSX(path, sheet string) *XLSX {
	if sheet == "" {
		sheet = DefaultSheet
	}
	return &XLSX{Path: path, Sheet: sheet}
}

// Write replaces the workbook at x.Path.
func (x *XLSX) Write(_ context.Context, report *job.Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := x.fill(f, report); err != nil {
		return errors.Wrapf(err, "building xlsx report %s", x.Path)
	}
	err := writeAtomic(x.Path, func(w io.Writer) error {
		_, err := f.WriteTo(w)
		return err
	})
	return errors.Wrapf(err, "writing xlsx report %s", x.Path)
}

func (x *XLSX) fill(f *excelize.File, report *job.Report) error {
	if err := f.SetSheetName(f.GetSheetName(0), x.Sheet); err != nil {
		return err
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(x.Sheet, "A1", &header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(Header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(x.Sheet, "A1", last, bold); err != nil {
		return err
	}

	if report == nil {
		return nil
	}
	for i, r := range report.Results {
		rec := Record(r)
		row := make([]any, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		if r.BuildNumber > 0 {
			row[10] = r.BuildNumber
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(x.Sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
