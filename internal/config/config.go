package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/shipyard/internal/logging"
)

// Config represents the complete shipyard configuration
type Config struct {
	CI           CIConfig           `mapstructure:"ci" yaml:"ci"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Source       SourceConfig       `mapstructure:"source" yaml:"source"`
	Sink         SinkConfig         `mapstructure:"sink" yaml:"sink"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
}

// CIConfig describes how to reach the CI server
type CIConfig struct {
	// BaseURL is the Jenkins root, e.g. https://jenkins.example.com
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// Username and Token are sent as HTTP basic auth when Username is set
	Username string `mapstructure:"username" yaml:"username"`
	Token    string `mapstructure:"token" yaml:"token"`
	// Crumb enables the CSRF crumb handshake before POST requests
	Crumb bool `mapstructure:"crumb" yaml:"crumb"`
	// RequestTimeout bounds a single HTTP request
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	// InsecureSkipVerify disables TLS certificate checks (self-signed internal servers)
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	// EnvParam is the build parameter that carries the target environment
	EnvParam string `mapstructure:"env_param" yaml:"env_param"`
}

// OrchestratorConfig controls concurrency and the polling cadence
type OrchestratorConfig struct {
	// Concurrency is the maximum number of jobs in flight
	Concurrency         int           `mapstructure:"concurrency" yaml:"concurrency"`
	PollInterval        time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ResolveInterval     time.Duration `mapstructure:"resolve_interval" yaml:"resolve_interval"`
	ResolveTimeout      time.Duration `mapstructure:"resolve_timeout" yaml:"resolve_timeout"`
	BuildTimeout        time.Duration `mapstructure:"build_timeout" yaml:"build_timeout"`
	MaxTransportRetries int           `mapstructure:"max_transport_retries" yaml:"max_transport_retries"`
}

// SourceConfig locates the job sheet
type SourceConfig struct {
	// Path is a .csv, .xlsx or .yaml file
	Path string `mapstructure:"path" yaml:"path"`
	// DefaultEnvironments apply to rows without an environment column value
	DefaultEnvironments []string `mapstructure:"default_environments" yaml:"default_environments"`
	// Sheet selects the worksheet of an .xlsx file (default: first sheet)
	Sheet string `mapstructure:"sheet" yaml:"sheet"`
}

// SinkConfig controls where the report goes
type SinkConfig struct {
	// Paths are report files; the extension picks the format
	Paths []string `mapstructure:"paths" yaml:"paths"`
	// Terminal prints a summary table to stdout
	Terminal bool         `mapstructure:"terminal" yaml:"terminal"`
	Etcd     EtcdConfig   `mapstructure:"etcd" yaml:"etcd"`
	GitLab   GitLabConfig `mapstructure:"gitlab" yaml:"gitlab"`
}

// EtcdConfig publishes results to etcd when Endpoints is non-empty
type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints" yaml:"endpoints"`
	Prefix      string        `mapstructure:"prefix" yaml:"prefix"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	// WriteTimeout bounds publishing one report
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// Enabled reports whether the etcd sink is configured.
func (e EtcdConfig) Enabled() bool {
	return len(e.Endpoints) > 0
}

// GitLabConfig plays the manual jobs of a GitLab pipeline whose names match
// deployed Jenkins jobs. Inside GitLab CI, set project_id and pipeline_id
// from CI_PROJECT_ID and CI_PIPELINE_ID.
type GitLabConfig struct {
	// URL is the API root, e.g. https://gitlab.example.com/api/v4
	URL        string `mapstructure:"url" yaml:"url"`
	ProjectID  string `mapstructure:"project_id" yaml:"project_id"`
	PipelineID string `mapstructure:"pipeline_id" yaml:"pipeline_id"`
	// Token is sent as PRIVATE-TOKEN
	Token          string        `mapstructure:"token" yaml:"token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// Enabled reports whether the GitLab sink is configured.
func (g GitLabConfig) Enabled() bool {
	return g.ProjectID != "" || g.PipelineID != ""
}

// LoggingConfig controls debug logging
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// File receives the log; empty means stderr
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// Options converts the section into logging options.
func (l LoggingConfig) Options() logging.Options {
	return logging.Options{
		Level: l.Level,
		File:  l.File,
		Rotation: logging.RotationConfig{
			MaxSizeMB:  l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			Compress:   l.Compress,
		},
	}
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		CI: CIConfig{
			RequestTimeout: 30 * time.Second,
			EnvParam:       "ENV",
		},
		Orchestrator: OrchestratorConfig{
			Concurrency:         60,
			PollInterval:        10 * time.Second,
			ResolveInterval:     10 * time.Second,
			ResolveTimeout:      10 * time.Minute,
			BuildTimeout:        60 * time.Minute,
			MaxTransportRetries: 3,
		},
		Source: SourceConfig{
			DefaultEnvironments: []string{},
		},
		Sink: SinkConfig{
			Paths:    []string{},
			Terminal: true,
			Etcd: EtcdConfig{
				Endpoints:   []string{},
				Prefix:      "/shipyard/runs",
				DialTimeout:  5 * time.Second,
				WriteTimeout: 10 * time.Second,
			},
			GitLab: GitLabConfig{
				URL:            "https://gitlab.com/api/v4",
				RequestTimeout: 30 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with the global viper instance
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers default values with v
func SetDefaultsOn(v *viper.Viper) {
	d := Default()

	v.SetDefault("ci.base_url", d.CI.BaseURL)
	v.SetDefault("ci.username", d.CI.Username)
	v.SetDefault("ci.token", d.CI.Token)
	v.SetDefault("ci.crumb", d.CI.Crumb)
	v.SetDefault("ci.request_timeout", d.CI.RequestTimeout)
	v.SetDefault("ci.insecure_skip_verify", d.CI.InsecureSkipVerify)
	v.SetDefault("ci.env_param", d.CI.EnvParam)

	v.SetDefault("orchestrator.concurrency", d.Orchestrator.Concurrency)
	v.SetDefault("orchestrator.poll_interval", d.Orchestrator.PollInterval)
	v.SetDefault("orchestrator.resolve_interval", d.Orchestrator.ResolveInterval)
	v.SetDefault("orchestrator.resolve_timeout", d.Orchestrator.ResolveTimeout)
	v.SetDefault("orchestrator.build_timeout", d.Orchestrator.BuildTimeout)
	v.SetDefault("orchestrator.max_transport_retries", d.Orchestrator.MaxTransportRetries)

	v.SetDefault("source.path", d.Source.Path)
	v.SetDefault("source.default_environments", d.Source.DefaultEnvironments)
	v.SetDefault("source.sheet", d.Source.Sheet)

	v.SetDefault("sink.paths", d.Sink.Paths)
	v.SetDefault("sink.terminal", d.Sink.Terminal)
	v.SetDefault("sink.etcd.endpoints", d.Sink.Etcd.Endpoints)
	v.SetDefault("sink.etcd.prefix", d.Sink.Etcd.Prefix)
	v.SetDefault("sink.etcd.dial_timeout", d.Sink.Etcd.DialTimeout)
	v.SetDefault("sink.etcd.write_timeout", d.Sink.Etcd.WriteTimeout)
	v.SetDefault("sink.gitlab.url", d.Sink.GitLab.URL)
	v.SetDefault("sink.gitlab.project_id", d.Sink.GitLab.ProjectID)
	v.SetDefault("sink.gitlab.pipeline_id", d.Sink.GitLab.PipelineID)
	v.SetDefault("sink.gitlab.token", d.Sink.GitLab.Token)
	v.SetDefault("sink.gitlab.request_timeout", d.Sink.GitLab.RequestTimeout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.compress", d.Logging.Compress)
}

// Load reads the configuration from the global viper instance and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v and validates it
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "shipyard")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shipyard"
	}
	return filepath.Join(home, ".config", "shipyard")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	if out.CI.Token != "" {
		out.CI.Token = "********"
	}
	if out.Sink.GitLab.Token != "" {
		out.Sink.GitLab.Token = "********"
	}
	return &out
}
