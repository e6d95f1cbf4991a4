// Package container hosts handler.Handler instances and enforces their
// lifecycle: a single Init under a timeout before any Service call, concurrent
// Service dispatch while in service, and a drain of in-flight calls before a
// single Destroy.
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"handler_runner/config"
	herrors "handler_runner/errors"
	"handler_runner/handler"
	"handler_runner/metric"
)

const info = "handler_runner container"

// Status describes one registered handler.
type Status struct {
	Name  string
	State handler.State
	Info  string
}

// slot is a registered handler name. It holds the current instance, if any.
// mu serializes lifecycle operations on the slot; current is read without it
// so dispatch never waits on a load or a drain.
type slot struct {
	name    string
	factory handler.Factory
	params  map[string]string

	mu      sync.Mutex
	current atomic.Pointer[instance]
	// info is the Info of the first instance built, kept for listings.
	info atomic.Pointer[string]
}

// Container manages handler instances by name.
type Container struct {
	name      string
	cfg       config.Config
	logger    *slog.Logger
	lifecycle *metric.Lifecycle

	mu    sync.RWMutex
	slots map[string]*slot
	order []string

	closed atomic.Bool
}

// New creates a container with the lifecycle limits from cfg. A non-positive
// InitTimeout or DrainGracePeriod takes the value from config.DefaultConfig.
func New(cfg config.Config, opts ...Option) *Container {
	defaults := config.DefaultConfig()
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = defaults.InitTimeout
	}
	if cfg.DrainGracePeriod <= 0 {
		cfg.DrainGracePeriod = defaults.DrainGracePeriod
	}
	name := cfg.ContainerName
	if name == "" {
		name = defaults.ContainerName
	}
	c := &Container{
		name:      name,
		cfg:       cfg,
		logger:    slog.Default(),
		lifecycle: metric.NewLifecycle(""),
		slots:     make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements handler.Host.
func (c *Container) Name() string { return c.name }

// Info implements handler.Host.
func (c *Container) Info() string { return info }

// Logger implements handler.Host.
func (c *Container) Logger() *slog.Logger { return c.logger }

// Lifecycle returns the lifecycle metrics collector, which may be nil.
func (c *Container) Lifecycle() *metric.Lifecycle { return c.lifecycle }

// Register adds a handler under name. Instances are built by factory when the
// handler is loaded and receive params as their init parameters.
func (c *Container) Register(name string, factory handler.Factory, params map[string]string) error {
	if name == "" {
		return herrors.NewInvalidArgumentError("name", "must not be empty")
	}
	if factory == nil {
		return herrors.NewInvalidArgumentError("factory", "must not be nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.slots[name]; ok {
		return herrors.NewServerError(fmt.Sprintf("handler %q has already been registered", name))
	}
	c.slots[name] = &slot{name: name, factory: factory, params: params}
	c.order = append(c.order, name)
	c.lifecycle.SetState(name, handler.Uninitialized)
	return nil
}

// Start loads every registered handler in registration order. A handler that
// fails to load does not prevent the others from loading; all failures are
// returned joined.
func (c *Container) Start(ctx context.Context) error {
	var errs []error
	for _, name := range c.names() {
		if err := c.Load(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load builds a fresh instance of the named handler and initializes it. A
// failed or timed out Init discards the instance without destroying it; the
// container then retries with a new instance up to InitRetries times. Loading
// a handler that already has a live instance is a contract violation.
func (c *Container) Load(ctx context.Context, name string) error {
	s, err := c.slot(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.load(ctx, s)
}

func (c *Container) load(ctx context.Context, s *slot) error {
	if c.closed.Load() {
		return herrors.NewContractViolation("init", "container shut down")
	}
	if cur := s.current.Load(); cur != nil && !cur.State().Terminal() {
		return herrors.NewContractViolation("init", cur.State().String())
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.InitRetries; attempt++ {
		inst := newInstance(s.name, s.factory())
		if s.info.Load() == nil {
			info := inst.h.Info()
			s.info.Store(&info)
		}
		s.current.Store(inst)

		lastErr = c.initInstance(ctx, inst, handler.NewConfig(s.name, s.params, c))
		if lastErr == nil {
			return nil
		}

		c.logger.Error("Handler failed to initialize", "handler", s.name, "attempt", attempt+1, "error", lastErr)
		if ctx.Err() != nil {
			break
		}
	}
	return lastErr
}

func (c *Container) initInstance(ctx context.Context, inst *instance, cfg *handler.Config) error {
	timeout := c.cfg.InitTimeout.ToStd()
	initCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in init: %v", r)
			}
		}()
		done <- inst.h.Init(initCtx, cfg)
	}()

	var err error
	select {
	case err = <-done:
	case <-initCtx.Done():
		// The Init call is abandoned; its outcome no longer matters.
		err = fmt.Errorf("init did not complete within %s: %w", timeout, initCtx.Err())
	}
	c.lifecycle.ObserveInit(inst.name, time.Since(start), err)

	if err != nil {
		// The instance never entered service; it is discarded, never destroyed.
		inst.cancel()
		_ = inst.transition("init", handler.Failed)
		c.lifecycle.SetState(inst.name, handler.Failed)
		var ie *herrors.InitializationError
		if !errors.As(err, &ie) {
			err = herrors.NewInitializationError(inst.name, err)
		}
		return err
	}

	if err := inst.transition("init", handler.Initialized); err != nil {
		return err
	}
	c.lifecycle.SetState(inst.name, handler.Initialized)
	if err := inst.transition("init", handler.InService); err != nil {
		return err
	}
	c.lifecycle.SetState(inst.name, handler.InService)

	c.logger.Info("Handler in service", "handler", inst.name, "info", inst.h.Info(), "duration", time.Since(start))
	return nil
}

// Service dispatches one request to the named handler. Calls are rejected with
// a contract violation unless the handler is in service. A request without an
// id is given one. Whenever an error is returned, resp carries an error status.
func (c *Container) Service(ctx context.Context, name string, req handler.Request, resp handler.Response) error {
	start := time.Now()

	s, err := c.slot(name)
	if err != nil {
		handler.SetError(resp, err)
		metric.RecordRequest(metric.UnknownHandler, metric.OutcomeNotFound, time.Since(start))
		return err
	}

	inst := s.instance()
	if inst == nil {
		err := herrors.NewContractViolation("service", handler.Uninitialized.String())
		handler.SetError(resp, err)
		metric.RecordRequest(name, metric.OutcomeRejected, time.Since(start))
		return err
	}

	callCtx, release, err := inst.acquire(ctx)
	if err != nil {
		handler.SetError(resp, err)
		metric.RecordRequest(name, metric.OutcomeRejected, time.Since(start))
		return err
	}
	c.lifecycle.CallStarted(name)
	defer c.lifecycle.CallFinished(name)
	defer release()

	if req.ID() == "" {
		req = handler.WithID(req, uuid.NewString())
	}

	err = c.dispatch(callCtx, inst, req, resp)
	if err != nil {
		handler.SetError(resp, err)
		c.logger.Warn("Service call failed", "handler", name, "request_id", req.ID(), "status", resp.Status(), "error", err)
		metric.RecordRequest(name, outcome(err), time.Since(start))
		if herrors.IsFatal(err) {
			go c.retire(s, inst)
		}
		return err
	}

	if resp.Status() == 0 {
		resp.SetStatus(http.StatusOK)
	}
	metric.RecordRequest(name, metric.OutcomeOK, time.Since(start))
	return nil
}

// dispatch calls Service, turning a panic into a handling failure.
func (c *Container) dispatch(ctx context.Context, inst *instance, req handler.Request, resp handler.Response) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panic", "handler", inst.name, "panic", r, "stack", string(debug.Stack()))
			err = herrors.NewHandlingError(http.StatusInternalServerError, fmt.Sprintf("panic: %v", r))
		}
	}()
	return inst.h.Service(ctx, req, resp)
}

// retire takes an instance out of service after a fatal handling failure.
func (c *Container) retire(s *slot, inst *instance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Load() != inst {
		return
	}
	c.logger.Warn("Retiring handler after fatal failure", "handler", s.name)
	if err := c.destroy(context.Background(), inst); err != nil {
		if !errors.Is(err, herrors.ErrContractViolation) {
			c.logger.Error("Failed to retire handler", "handler", s.name, "error", err)
		}
		return
	}
	if c.cfg.ReloadOnFatal && !c.closed.Load() {
		if err := c.load(context.Background(), s); err != nil {
			c.logger.Error("Failed to reload handler", "handler", s.name, "error", err)
		}
	}
}

// Destroy takes the named handler out of service. New calls are rejected at
// once; in-flight calls get up to DrainGracePeriod to return before they are
// abandoned and the handler's Destroy runs. Destroying an instance twice, or
// one that never entered service, is a contract violation.
func (c *Container) Destroy(ctx context.Context, name string) error {
	s, err := c.slot(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	inst := s.current.Load()
	if inst == nil {
		return herrors.NewContractViolation("destroy", handler.Uninitialized.String())
	}
	return c.destroy(ctx, inst)
}

func (c *Container) destroy(ctx context.Context, inst *instance) error {
	if err := inst.transition("destroy", handler.Destroying); err != nil {
		return err
	}
	c.lifecycle.SetState(inst.name, handler.Destroying)
	start := time.Now()

	if abandoned := c.drain(ctx, inst); abandoned > 0 {
		c.logger.Warn("Abandoning in-flight calls", "handler", inst.name, "calls", abandoned)
		c.lifecycle.AddAbandoned(inst.name, abandoned)
		inst.cancel()
	}

	err := c.callDestroy(ctx, inst)
	inst.cancel()
	if terr := inst.transition("destroy", handler.Destroyed); terr != nil {
		return terr
	}
	c.lifecycle.SetState(inst.name, handler.Destroyed)
	c.lifecycle.ObserveDestroy(inst.name, time.Since(start), err)

	if err != nil {
		c.logger.Error("Handler destroy failed", "handler", inst.name, "error", err)
		return fmt.Errorf("destroy handler %q: %w", inst.name, err)
	}
	c.logger.Info("Handler destroyed", "handler", inst.name, "duration", time.Since(start))
	return nil
}

// drain waits for in-flight calls and returns how many were still running when
// the grace period elapsed or ctx was cancelled.
func (c *Container) drain(ctx context.Context, inst *instance) int64 {
	timer := time.NewTimer(c.cfg.DrainGracePeriod.ToStd())
	defer timer.Stop()

	select {
	case <-inst.wait():
		return 0
	case <-timer.C:
	case <-ctx.Done():
	}
	return inst.active.Load()
}

func (c *Container) callDestroy(ctx context.Context, inst *instance) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in destroy: %v", r)
		}
	}()
	return inst.h.Destroy(ctx)
}

// Shutdown closes the container to further loads and destroys every handler
// that is in service, concurrently. A load or retirement already running on a
// handler finishes first, and what it left in service is destroyed too.
func (c *Container) Shutdown(ctx context.Context) error {
	c.closed.Store(true)

	var g errgroup.Group
	for _, name := range c.names() {
		s, err := c.slot(name)
		if err != nil {
			continue
		}
		g.Go(func() error {
			return c.shutdownSlot(ctx, s)
		})
	}
	return g.Wait()
}

func (c *Container) shutdownSlot(ctx context.Context, s *slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst := s.current.Load()
	if inst == nil || !inst.State().Serviceable() {
		return nil
	}
	return c.destroy(ctx, inst)
}

// State returns the lifecycle state of the named handler's current instance.
func (c *Container) State(name string) (handler.State, error) {
	s, err := c.slot(name)
	if err != nil {
		return handler.Uninitialized, err
	}
	if inst := s.instance(); inst != nil {
		return inst.State(), nil
	}
	return handler.Uninitialized, nil
}

// Config returns the configuration held by the named handler. It is only
// available between a successful Init and the end of Destroy.
func (c *Container) Config(name string) (*handler.Config, error) {
	s, err := c.slot(name)
	if err != nil {
		return nil, err
	}
	inst := s.instance()
	if inst == nil {
		return nil, herrors.NewContractViolation("config", handler.Uninitialized.String())
	}
	switch st := inst.State(); st {
	case handler.Initialized, handler.InService, handler.Destroying:
		return inst.h.Config(), nil
	default:
		return nil, herrors.NewContractViolation("config", st.String())
	}
}

// HandlerInfo returns the Info string of the named handler, or "" if no
// instance of it was ever built.
func (c *Container) HandlerInfo(name string) (string, error) {
	s, err := c.slot(name)
	if err != nil {
		return "", err
	}
	if inst := s.instance(); inst != nil {
		return inst.h.Info(), nil
	}
	if info := s.info.Load(); info != nil {
		return *info, nil
	}
	return "", nil
}

// Registered reports whether a handler is registered under name.
func (c *Container) Registered(name string) bool {
	_, err := c.slot(name)
	return err == nil
}

// Handlers lists registered handlers in registration order.
func (c *Container) Handlers() []Status {
	names := c.names()
	out := make([]Status, 0, len(names))
	for _, name := range names {
		st, _ := c.State(name)
		info, _ := c.HandlerInfo(name)
		out = append(out, Status{Name: name, State: st, Info: info})
	}
	return out
}

func (c *Container) names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

func (c *Container) slot(name string) (*slot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.slots[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", herrors.ErrNotFound, name)
	}
	return s, nil
}

func (s *slot) instance() *instance {
	return s.current.Load()
}

func outcome(err error) string {
	switch {
	case errors.Is(err, herrors.ErrIO):
		return metric.OutcomeIO
	case errors.Is(err, herrors.ErrContractViolation):
		return metric.OutcomeRejected
	default:
		return metric.OutcomeHandling
	}
}
