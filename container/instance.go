package container

import (
	"context"
	"sync"
	"sync/atomic"

	herrors "handler_runner/errors"
	"handler_runner/handler"
)

// instance pairs one handler with the state the container tracks for it.
type instance struct {
	name string
	h    handler.Handler

	mu       sync.Mutex
	state    handler.State
	inflight sync.WaitGroup
	active   atomic.Int64

	// ctx parents every service context of this instance. It is cancelled
	// when calls are abandoned at the end of a drain and after destroy.
	ctx    context.Context
	cancel context.CancelFunc
}

func newInstance(name string, h handler.Handler) *instance {
	ctx, cancel := context.WithCancel(context.Background())
	return &instance{
		name:   name,
		h:      h,
		state:  handler.Uninitialized,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (i *instance) State() handler.State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// transition moves the instance to next, rejecting illegal steps.
func (i *instance) transition(op string, next handler.State) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.state.CanTransition(next) {
		return herrors.NewContractViolation(op, i.state.String())
	}
	i.state = next
	return nil
}

// acquire admits one service call. The returned release func must be called
// exactly once when the call returns.
func (i *instance) acquire(parent context.Context) (context.Context, func(), error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.state.Serviceable() {
		return nil, nil, herrors.NewContractViolation("service", i.state.String())
	}
	// Add happens under mu while in service, so it can never race the Wait
	// started by a drain, which only begins after the state left InService.
	i.inflight.Add(1)
	i.active.Add(1)

	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(i.ctx, cancel)
	release := func() {
		stop()
		cancel()
		i.active.Add(-1)
		i.inflight.Done()
	}
	return ctx, release, nil
}

// wait returns a channel closed once every admitted call has returned.
func (i *instance) wait() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		i.inflight.Wait()
		close(done)
	}()
	return done
}
