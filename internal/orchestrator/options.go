package orchestrator

import (
	"github.com/Iron-Ham/shipyard/internal/event"
	"github.com/Iron-Ham/shipyard/internal/logging"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Runs log through a child carrying the run ID.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBus publishes run and job events on bus.
func WithBus(bus *event.Bus) Option {
	return func(o *Orchestrator) {
		o.bus = bus
	}
}

// WithRunID fixes the ID of the next runs instead of generating one per run.
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		o.runID = id
	}
}
