package ensemble

import (
	"github.com/okian/agropredict/pkg/logger"
)

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithDispatcher sets how invocations are executed. The default runs each
// invocation on its own goroutine.
func WithDispatcher(d Dispatcher) Option {
	return func(c *Coordinator) {
		if d != nil {
			c.dispatcher = d
		}
	}
}

// WithBuilder sets the request builder.
func WithBuilder(b RequestBuilder) Option {
	return func(c *Coordinator) {
		if b != nil {
			c.builder = b
		}
	}
}

// WithLogger sets a custom logger for the coordinator and its rounds.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}
