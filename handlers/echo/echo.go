// Package echo provides a handler that writes each request back to its
// response. It keeps no per-call state on the instance apart from an atomic
// request counter, so concurrent calls never see each other's data.
//
// Failures are never fatal to the instance.
//
// Init parameters:
//   - prefix: written before every echoed line
//   - delay:  duration each call waits before answering (default 0)
//
// Request parameters:
//   - marker: echoed back verbatim
//   - fail:   "true" makes the call fail with status 422
package echo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	herrors "handler_runner/errors"
	"handler_runner/handler"
)

// Handler echoes requests.
type Handler struct {
	handler.Base

	prefix string
	delay  time.Duration
	served atomic.Int64
}

// New creates an uninitialized echo handler.
func New() *Handler {
	return &Handler{Base: handler.Base{Description: "echo: writes the request id, marker and body back"}}
}

// Init reads the prefix and delay parameters.
func (h *Handler) Init(ctx context.Context, cfg *handler.Config) error {
	if err := h.Base.Init(ctx, cfg); err != nil {
		return err
	}

	h.prefix = cfg.Param("prefix")
	if v := cfg.Param("delay"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return herrors.NewInitializationError(cfg.Name(), fmt.Errorf("invalid delay: %w", err))
		}
		h.delay = d
	}
	return nil
}

// Service writes "<prefix>id=<id> marker=<marker> body=<body>".
func (h *Handler) Service(ctx context.Context, req handler.Request, resp handler.Response) error {
	body, err := io.ReadAll(req.Body())
	if err != nil {
		resp.SetStatus(http.StatusBadRequest)
		return herrors.NewIOError("read request body", err)
	}

	if h.delay > 0 {
		select {
		case <-time.After(h.delay):
		case <-ctx.Done():
			resp.SetStatus(http.StatusServiceUnavailable)
			return herrors.NewHandlingError(http.StatusServiceUnavailable, "call abandoned").WithCause(ctx.Err())
		}
	}

	if req.Param("fail") == "true" {
		resp.SetStatus(http.StatusUnprocessableEntity)
		return herrors.NewHandlingError(http.StatusUnprocessableEntity, fmt.Sprintf("request %s asked to fail", req.ID()))
	}

	resp.SetContentType("text/plain; charset=utf-8")
	resp.SetStatus(http.StatusOK)
	if _, err := fmt.Fprintf(resp, "%sid=%s marker=%s body=%s\n", h.prefix, req.ID(), req.Param("marker"), body); err != nil {
		return herrors.NewIOError("write response", err)
	}
	h.served.Add(1)
	return nil
}

// Served returns the number of successfully answered calls.
func (h *Handler) Served() int64 {
	return h.served.Load()
}

// Destroy has nothing to release.
func (h *Handler) Destroy(context.Context) error {
	h.Logger().Info("Echo handler destroyed", "served", h.served.Load())
	return nil
}
