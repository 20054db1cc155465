package kvcounter

import (
	"github.com/hashicorp/go-hclog"

	"github.com/ryhazerus/kvcounter/backoff"
)

// Option configures Counters.
type Option func(*Counters)

// WithPolicy sets the backoff policy used by GetValue and Increment.
// If not provided, backoff.Default() is used.
func WithPolicy(p backoff.Policy) Option {
	return func(c *Counters) {
		c.policy = p
	}
}

// WithLogger sets the logger. If not provided, logging is disabled.
func WithLogger(l hclog.Logger) Option {
	return func(c *Counters) {
		c.logger = l
	}
}

// WithRuntime sets the runtime every operation is executed on. Counters takes
// ownership and closes it in Close. If not provided, an unbounded runtime is
// created.
func WithRuntime(r Runtime) Option {
	return func(c *Counters) {
		c.runtime = r
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Counters) {
		c.metrics = m
	}
}
