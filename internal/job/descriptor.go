package job

import (
	"maps"
	"slices"
	"strings"

	"github.com/Iron-Ham/shipyard/internal/errors"
)

// Descriptor is an immutable unit of work: one CI job deployed to one or more
// environments with a fixed parameter set. Environment names are trimmed and
// must be unique within a descriptor; a repeated name would trigger the same
// deployment twice in one run.
type Descriptor struct {
	identity     string
	params       map[string]Param
	environments []string
}

// NewDescriptor validates its inputs and returns a Descriptor that owns copies
// of params and environments. It rejects an empty identity, an empty
// environment list, blank environment names and environment names that repeat
// after trimming.
func NewDescriptor(identity string, params map[string]Param, environments []string) (Descriptor, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return Descriptor{}, errors.NewValidationError("job identity cannot be empty").WithField("identity")
	}
	if len(environments) == 0 {
		return Descriptor{}, errors.NewValidationError("at least one environment is required").
			WithField("environments").WithValue(identity)
	}

	envs := make([]string, 0, len(environments))
	seen := make(map[string]bool, len(environments))
	for _, env := range environments {
		env = strings.TrimSpace(env)
		if env == "" {
			return Descriptor{}, errors.NewValidationError("environment name cannot be empty").
				WithField("environments").WithValue(identity)
		}
		if seen[env] {
			return Descriptor{}, errors.NewValidationError("duplicate environment").
				WithField("environments").WithValue(env)
		}
		seen[env] = true
		envs = append(envs, env)
	}

	return Descriptor{
		identity:     identity,
		params:       maps.Clone(params),
		environments: envs,
	}, nil
}

// MustDescriptor is NewDescriptor for literals known to be valid. It panics on error.
func MustDescriptor(identity string, params map[string]Param, environments ...string) Descriptor {
	d, err := NewDescriptor(identity, params, environments)
	if err != nil {
		panic(err)
	}
	return d
}

// Identity returns the job identity (a job path or an absolute job URL).
func (d Descriptor) Identity() string {
	return d.identity
}

// Environments returns a copy of the ordered environment list.
func (d Descriptor) Environments() []string {
	return slices.Clone(d.environments)
}

// Params returns a copy of the typed parameters.
func (d Descriptor) Params() map[string]Param {
	return maps.Clone(d.params)
}

// Param returns a single parameter.
func (d Descriptor) Param(name string) (Param, bool) {
	p, ok := d.params[name]
	return p, ok
}

// StringParams renders every parameter to its wire form.
func (d Descriptor) StringParams() map[string]string {
	out := make(map[string]string, len(d.params))
	for k, v := range d.params {
		out[k] = v.String()
	}
	return out
}

// Valid reports whether d was built by NewDescriptor. The zero Descriptor is invalid.
func (d Descriptor) Valid() bool {
	return d.identity != "" && len(d.environments) > 0
}

// TaskCount returns the total number of (descriptor, environment) pairs.
func TaskCount(descriptors []Descriptor) int {
	n := 0
	for _, d := range descriptors {
		n += len(d.environments)
	}
	return n
}
