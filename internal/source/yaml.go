package source

import (
	"context"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/job"
)

// YAML reads descriptors from a document of the form
//
//	jobs:
//	  - job: folder/app-a
//	    environments: [stage, prod]
//	    params:
//	      BRANCH: release/1.4
//	    bool_params:
//	      obc: true
type YAML struct {
	Path     string
	Defaults []string
}

// NewYAML creates a YAML source.
func NewYAML(path string, defaults []string) *YAML {
	return &YAML{Path: path, Defaults: defaults}
}

type yamlFile struct {
	Jobs []yamlJob `yaml:"jobs"`
}

type yamlJob struct {
	Job          string            `yaml:"job"`
	Environments []string          `yaml:"environments"`
	Params       map[string]string `yaml:"params"`
	BoolParams   map[string]bool   `yaml:"bool_params"`
}

// Load parses the document. Row numbers in errors are 1-based entry indexes
// in the jobs list.
func (y *YAML) Load(ctx context.Context) ([]job.Descriptor, error) {
	f, err := os.Open(y.Path)
	if err != nil {
		return nil, errors.NewLoadError(y.Path, err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var doc yamlFile
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, errors.NewLoadError(y.Path, err)
	}

	out := make([]job.Descriptor, 0, len(doc.Jobs))
	for i, j := range doc.Jobs {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewLoadError(y.Path, err)
		}
		params := make(map[string]job.Param, len(j.Params)+len(j.BoolParams))
		for k, v := range j.Params {
			params[k] = job.StringParam(v)
		}
		for k, v := range j.BoolParams {
			params[k] = job.BoolParam(v)
		}
		envs := j.Environments
		if len(envs) == 0 {
			envs = y.Defaults
		}

		d, err := job.NewDescriptor(j.Job, params, envs)
		if err != nil {
			var verr *errors.ValidationError
			col := "job"
			if errors.As(err, &verr) && verr.Field == "environments" {
				col = "environments"
			}
			return nil, errors.NewLoadError(y.Path, err).WithRow(i + 1).WithColumn(col)
		}
		out = append(out, d)
	}
	return out, nil
}
