package sink

import (
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/job"
)

// Header is the column layout of tabular reports. It extends the layout of
// the deployment sheets with the build number, the error kind and the error
// detail.
var Header = []string{
	"AppName", "Job Name", "ENV", "ChangeNumberPROD", "CTaskPROD", "ITReleaseVersion",
	"OBC", "CBC", "Branch", "Build Status", "Build Number", "Error Kind", "Error",
}

// Record renders one result in Header order.
func Record(r job.Result) []string {
	number := ""
	if r.BuildNumber > 0 {
		number = strconv.Itoa(r.BuildNumber)
	}
	return []string{
		r.Params[job.ParamAppName],
		r.JobIdentity,
		r.Environment,
		r.Params[job.ParamChange],
		r.Params[job.ParamChangeTask],
		r.Params[job.ParamRelease],
		r.Params[job.ParamOBC],
		r.Params[job.ParamCBC],
		r.Params[job.ParamBranch],
		r.State.String(),
		number,
		ErrorKindLabel(r.ErrorKind),
		r.Detail,
	}
}

// ErrorKindLabel renders an error kind for report columns. A result without
// an error renders empty.
func ErrorKindLabel(k errors.Kind) string {
	if k == errors.KindNone {
		return ""
	}
	return k.String()
}

// writeAtomic writes path through a temp file in the same directory and
// renames it into place, so readers never see a partial report.
func writeAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-report-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
