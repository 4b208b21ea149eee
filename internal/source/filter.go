package source

import (
	"context"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/job"
)

type filtered struct {
	src   Source
	globs []glob.Glob
}

// Filter keeps the descriptors whose identity matches any of patterns. '/'
// separates folder segments, so "team/*" does not match "team/sub/app".
// With no patterns src is returned unchanged.
func Filter(src Source, patterns []string) (Source, error) {
	if len(patterns) == 0 {
		return src, nil
	}
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.NewValidationError("invalid job pattern").
				WithField("only").WithValue(p).WithCause(err)
		}
		globs = append(globs, g)
	}
	return &filtered{src: src, globs: globs}, nil
}

func (f *filtered) Load(ctx context.Context) ([]job.Descriptor, error) {
	all, err := f.src.Load(ctx)
	if err != nil {
		return nil, err
	}
	var out []job.Descriptor
	for _, d := range all {
		for _, g := range f.globs {
			if g.Match(d.Identity()) {
				out = append(out, d)
				break
			}
		}
	}
	return out, nil
}
