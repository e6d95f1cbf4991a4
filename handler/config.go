package handler

import (
	"log/slog"
	"maps"
	"slices"
)

// Host is the hosting context a handler can reach through its Config.
type Host interface {
	// Name identifies the container.
	Name() string
	// Info describes the container in plain text.
	Info() string
	// Logger returns the container's logger.
	Logger() *slog.Logger
}

// Config is the immutable set of initialization parameters handed to one
// handler instance. The same pointer is passed to Init and returned by
// Handler.Config for the lifetime of the instance.
type Config struct {
	name   string
	params map[string]string
	host   Host
}

// NewConfig creates a Config. params is copied.
func NewConfig(name string, params map[string]string, host Host) *Config {
	return &Config{
		name:   name,
		params: maps.Clone(params),
		host:   host,
	}
}

// Name returns the name the handler is registered under.
func (c *Config) Name() string {
	return c.name
}

// Param returns the named init parameter, or "" if it is not set.
func (c *Config) Param(key string) string {
	return c.params[key]
}

// ParamOr returns the named init parameter, or def if it is empty.
func (c *Config) ParamOr(key, def string) string {
	if v := c.params[key]; v != "" {
		return v
	}
	return def
}

// ParamNames returns the init parameter names in sorted order.
func (c *Config) ParamNames() []string {
	return slices.Sorted(maps.Keys(c.params))
}

// Host returns the hosting context. It may be nil outside a container.
func (c *Config) Host() Host {
	return c.host
}
