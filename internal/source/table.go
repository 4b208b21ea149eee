package source

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/job"
)

type columnKind int

const (
	colPassThrough columnKind = iota
	colIgnored
	colJob
	colEnv
	colString
	colBool
)

type column struct {
	header string
	kind   columnKind
	param  string
}

// knownColumns maps a normalized header to its meaning. Report-only columns
// are ignored so a previous report can be fed back in as input.
var knownColumns = map[string]column{
	"jobname":           {kind: colJob},
	"job":               {kind: colJob},
	"env":               {kind: colEnv},
	"environment":       {kind: colEnv},
	"environments":      {kind: colEnv},
	"appname":           {kind: colString, param: job.ParamAppName},
	"branch":            {kind: colString, param: job.ParamBranch},
	"itreleaseversion":  {kind: colString, param: job.ParamRelease},
	"itreleasedversion": {kind: colString, param: job.ParamRelease},
	"changerequest":     {kind: colString, param: job.ParamChange},
	"changenumberprod":  {kind: colString, param: job.ParamChange},
	"changetask":        {kind: colString, param: job.ParamChangeTask},
	"ctaskprod":         {kind: colString, param: job.ParamChangeTask},
	"obc":               {kind: colBool, param: job.ParamOBC},
	"cbc":               {kind: colBool, param: job.ParamCBC},
	"buildstatus":       {kind: colIgnored},
	"buildnumber":       {kind: colIgnored},
	"errorkind":         {kind: colIgnored},
	"error":             {kind: colIgnored},
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '\t':
			return -1
		}
		return r
	}, strings.ToLower(h))
}

// table turns header-plus-rows input into descriptors.
type table struct {
	path     string
	defaults []string
	columns  []column
}

// newTable interprets the header row. Row numbers in errors count the header
// as row 1.
func newTable(path string, header []string, defaults []string) (*table, error) {
	t := &table{path: path, defaults: defaults}
	hasJob := false
	for _, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		col, ok := knownColumns[normalizeHeader(name)]
		switch {
		case name == "":
			col = column{kind: colIgnored}
		case !ok:
			col = column{kind: colPassThrough, param: name}
		}
		col.header = name
		hasJob = hasJob || col.kind == colJob
		t.columns = append(t.columns, col)
	}

	if !hasJob {
		return nil, errors.NewLoadError(path, errors.New("missing required column")).
			WithRow(1).WithColumn("Job Name")
	}
	return t, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// SplitEnvironments splits a cell such as "dev, stage;prod".
func SplitEnvironments(s string) []string {
	var out []string
	for _, env := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if env = strings.TrimSpace(env); env != "" {
			out = append(out, env)
		}
	}
	return out
}

// row converts one data row. skip is true for blank rows.
func (t *table) row(num int, cells []string) (d job.Descriptor, skip bool, err error) {
	if blank(cells) {
		return job.Descriptor{}, true, nil
	}

	var identity string
	var envs []string
	params := make(map[string]job.Param)
	fail := func(col string, cause error) error {
		return errors.NewLoadError(t.path, cause).WithRow(num).WithColumn(col)
	}

	for i, col := range t.columns {
		value := ""
		if i < len(cells) {
			value = strings.TrimSpace(cells[i])
		}
		switch col.kind {
		case colJob:
			identity = value
		case colEnv:
			envs = append(envs, SplitEnvironments(value)...)
		case colString:
			// AppName selects the app inside mono-repo jobs and is only sent when set.
			if col.param == job.ParamAppName && value == "" {
				continue
			}
			params[col.param] = job.StringParam(value)
		case colBool:
			p, err := job.ParseBoolParam(value)
			if err != nil {
				return job.Descriptor{}, false, fail(col.header, err)
			}
			params[col.param] = p
		case colPassThrough:
			params[col.param] = job.StringParam(value)
		}
	}

	if identity == "" {
		return job.Descriptor{}, false, fail("Job Name", errors.New("job name is empty"))
	}
	if len(envs) == 0 {
		envs = t.defaults
	}
	if len(envs) == 0 {
		return job.Descriptor{}, false, fail("Env",
			fmt.Errorf("no environment for %q and no default environments", identity))
	}

	d, err = job.NewDescriptor(identity, params, envs)
	if err != nil {
		return job.Descriptor{}, false, fail("Env", err)
	}
	return d, false, nil
}
