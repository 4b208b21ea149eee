package orchestrator

import "time"

// Config holds the timing and retry policy of a run.
type Config struct {
	// PollInterval is the wait between build status queries.
	PollInterval time.Duration
	// ResolveInterval is the wait between queue queries.
	ResolveInterval time.Duration
	// ResolveTimeout bounds how long a trigger may sit in the queue.
	ResolveTimeout time.Duration
	// BuildTimeout bounds how long a build may run.
	BuildTimeout time.Duration
	// MaxTransportRetries is how many consecutive transport failures a loop
	// tolerates before giving up.
	MaxTransportRetries int
	// EnvParam is the build parameter that receives the environment name.
	EnvParam string
}

// DefaultConfig returns the policy used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		PollInterval:        10 * time.Second,
		ResolveInterval:     10 * time.Second,
		ResolveTimeout:      10 * time.Minute,
		BuildTimeout:        60 * time.Minute,
		MaxTransportRetries: 3,
		EnvParam:            "ENV",
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ResolveInterval <= 0 {
		c.ResolveInterval = d.ResolveInterval
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = d.ResolveTimeout
	}
	if c.BuildTimeout <= 0 {
		c.BuildTimeout = d.BuildTimeout
	}
	if c.MaxTransportRetries < 0 {
		c.MaxTransportRetries = 0
	}
	if c.EnvParam == "" {
		c.EnvParam = d.EnvParam
	}
	return c
}
