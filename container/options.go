package container

import (
	"log/slog"

	"handler_runner/metric"
)

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger handed to hosted handlers through their Config.
func WithLogger(l *slog.Logger) Option {
	return func(c *Container) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLifecycleMetrics sets the lifecycle collector. Passing nil disables
// lifecycle metrics.
func WithLifecycleMetrics(m *metric.Lifecycle) Option {
	return func(c *Container) {
		c.lifecycle = m
	}
}
