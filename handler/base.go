package handler

import (
	"context"
	"log/slog"
	"sync/atomic"

	herrors "handler_runner/errors"
)

// Base implements the bookkeeping part of Handler: it stores the config on
// Init and serves Config, Info and Logger. Concrete handlers embed it and call
// Base.Init first from their own Init.
type Base struct {
	// Description is returned by Info.
	Description string

	cfg atomic.Pointer[Config]
}

// Init stores cfg. A nil cfg is an invalid argument and a second call is a
// contract violation.
func (b *Base) Init(_ context.Context, cfg *Config) error {
	if cfg == nil {
		return herrors.NewInvalidArgumentError("config", "must not be nil")
	}
	if !b.cfg.CompareAndSwap(nil, cfg) {
		return herrors.NewContractViolation("init", "already initialized")
	}
	return nil
}

// Config returns the config passed to Init, or nil before Init.
func (b *Base) Config() *Config {
	return b.cfg.Load()
}

// Info returns Description.
func (b *Base) Info() string {
	return b.Description
}

// Logger returns the host logger scoped to this handler, falling back to the
// default logger when there is no host.
func (b *Base) Logger() *slog.Logger {
	cfg := b.cfg.Load()
	if cfg == nil {
		return slog.Default()
	}
	l := slog.Default()
	if h := cfg.Host(); h != nil && h.Logger() != nil {
		l = h.Logger()
	}
	return l.With("handler", cfg.Name())
}
