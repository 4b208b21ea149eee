package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Iron-Ham/shipyard/internal/errors"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "orchestrator.concurrency")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Is lets callers classify configuration failures as invalid input.
func (e ValidationErrors) Is(target error) bool {
	return target == errors.ErrInvalidInput
}

// Fields returns the failing field paths in order.
func (e ValidationErrors) Fields() []string {
	out := make([]string, len(e))
	for i, v := range e {
		out[i] = v.Field
	}
	return out
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidReportExtensions returns the file extensions accepted in sink.paths
func ValidReportExtensions() []string {
	return []string{".csv", ".xlsx", ".json"}
}

// ValidSourceExtensions returns the file extensions accepted in source.path
func ValidSourceExtensions() []string {
	return []string{".csv", ".xlsx", ".yaml", ".yml"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateCI()...)
	errs = append(errs, c.validateOrchestrator()...)
	errs = append(errs, c.validateSource()...)
	errs = append(errs, c.validateSink()...)
	errs = append(errs, c.validateLogging()...)
	return errs
}

func (c *Config) validateCI() []ValidationError {
	var errs []ValidationError

	if c.CI.BaseURL != "" {
		u, err := url.Parse(c.CI.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "ci.base_url",
				Value:   c.CI.BaseURL,
				Message: "must be an absolute http(s) URL",
			})
		}
	}

	if c.CI.Token != "" && c.CI.Username == "" {
		errs = append(errs, ValidationError{
			Field:   "ci.username",
			Value:   c.CI.Username,
			Message: "is required when ci.token is set",
		})
	}

	if c.CI.RequestTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "ci.request_timeout",
			Value:   c.CI.RequestTimeout,
			Message: "must be positive",
		})
	}

	if strings.TrimSpace(c.CI.EnvParam) == "" {
		errs = append(errs, ValidationError{
			Field:   "ci.env_param",
			Value:   c.CI.EnvParam,
			Message: "cannot be empty",
		})
	}

	return errs
}

func (c *Config) validateOrchestrator() []ValidationError {
	var errs []ValidationError
	o := c.Orchestrator

	if o.Concurrency < 1 {
		errs = append(errs, ValidationError{
			Field:   "orchestrator.concurrency",
			Value:   o.Concurrency,
			Message: "must be at least 1",
		})
	}

	positive := []struct {
		field string
		value any
		ok    bool
	}{
		{"orchestrator.poll_interval", o.PollInterval, o.PollInterval > 0},
		{"orchestrator.resolve_interval", o.ResolveInterval, o.ResolveInterval > 0},
		{"orchestrator.resolve_timeout", o.ResolveTimeout, o.ResolveTimeout > 0},
		{"orchestrator.build_timeout", o.BuildTimeout, o.BuildTimeout > 0},
	}
	for _, p := range positive {
		if !p.ok {
			errs = append(errs, ValidationError{Field: p.field, Value: p.value, Message: "must be positive"})
		}
	}

	if o.PollInterval > 0 && o.BuildTimeout > 0 && o.PollInterval > o.BuildTimeout {
		errs = append(errs, ValidationError{
			Field:   "orchestrator.poll_interval",
			Value:   o.PollInterval,
			Message: "must not exceed orchestrator.build_timeout",
		})
	}

	if o.MaxTransportRetries < 0 {
		errs = append(errs, ValidationError{
			Field:   "orchestrator.max_transport_retries",
			Value:   o.MaxTransportRetries,
			Message: "must be non-negative",
		})
	}

	return errs
}

func (c *Config) validateSource() []ValidationError {
	var errs []ValidationError

	if c.Source.Path != "" && !slices.Contains(ValidSourceExtensions(), strings.ToLower(filepath.Ext(c.Source.Path))) {
		errs = append(errs, ValidationError{
			Field:   "source.path",
			Value:   c.Source.Path,
			Message: fmt.Sprintf("extension must be one of: %s", strings.Join(ValidSourceExtensions(), ", ")),
		})
	}

	seen := make(map[string]bool)
	for i, env := range c.Source.DefaultEnvironments {
		field := fmt.Sprintf("source.default_environments[%d]", i)
		switch {
		case strings.TrimSpace(env) == "":
			errs = append(errs, ValidationError{Field: field, Value: env, Message: "cannot be empty"})
		case seen[env]:
			errs = append(errs, ValidationError{Field: field, Value: env, Message: "duplicate environment"})
		}
		seen[env] = true
	}

	return errs
}

func (c *Config) validateSink() []ValidationError {
	var errs []ValidationError

	for i, p := range c.Sink.Paths {
		if !slices.Contains(ValidReportExtensions(), strings.ToLower(filepath.Ext(p))) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("sink.paths[%d]", i),
				Value:   p,
				Message: fmt.Sprintf("extension must be one of: %s", strings.Join(ValidReportExtensions(), ", ")),
			})
		}
	}

	if c.Sink.Etcd.Enabled() {
		if strings.TrimSpace(c.Sink.Etcd.Prefix) == "" {
			errs = append(errs, ValidationError{
				Field:   "sink.etcd.prefix",
				Value:   c.Sink.Etcd.Prefix,
				Message: "cannot be empty when endpoints are set",
			})
		}
		if c.Sink.Etcd.DialTimeout <= 0 {
			errs = append(errs, ValidationError{
				Field:   "sink.etcd.dial_timeout",
				Value:   c.Sink.Etcd.DialTimeout,
				Message: "must be positive",
			})
		}
		if c.Sink.Etcd.WriteTimeout <= 0 {
			errs = append(errs, ValidationError{
				Field:   "sink.etcd.write_timeout",
				Value:   c.Sink.Etcd.WriteTimeout,
				Message: "must be positive",
			})
		}
	}

	if g := c.Sink.GitLab; g.Enabled() {
		u, err := url.Parse(g.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "sink.gitlab.url",
				Value:   g.URL,
				Message: "must be an absolute http(s) URL",
			})
		}
		if strings.TrimSpace(g.ProjectID) == "" {
			errs = append(errs, ValidationError{
				Field:   "sink.gitlab.project_id",
				Value:   g.ProjectID,
				Message: "is required when pipeline_id is set",
			})
		}
		if strings.TrimSpace(g.PipelineID) == "" {
			errs = append(errs, ValidationError{
				Field:   "sink.gitlab.pipeline_id",
				Value:   g.PipelineID,
				Message: "is required when project_id is set",
			})
		}
		if g.Token == "" {
			errs = append(errs, ValidationError{
				Field:   "sink.gitlab.token",
				Value:   "",
				Message: "is required when the GitLab sink is enabled",
			})
		}
		if g.RequestTimeout <= 0 {
			errs = append(errs, ValidationError{
				Field:   "sink.gitlab.request_timeout",
				Value:   g.RequestTimeout,
				Message: "must be positive",
			})
		}
	}

	return errs
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// 0 disables rotation.
	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxSizeMB > maxLogSizeMB {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("must be between 0 and %d", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errs
}
