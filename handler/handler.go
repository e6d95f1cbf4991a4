// Package handler defines the contract between a hosting container and the
// request handlers it manages.
//
// A handler instance moves through its lifecycle exactly once and in order:
//
//	Uninitialized -> Initialized -> InService -> Destroyed
//
// The container calls Init once, then any number of Service calls, then
// Destroy once. Init and Destroy never run concurrently with any other method
// on the same instance. Service, on the other hand, is called concurrently
// from many goroutines against the same instance, each call with its own
// Request and Response. The contract takes no locks on behalf of an
// implementation: any field a handler writes during Service must be guarded
// by the handler itself (a mutex, an atomic, an immutable snapshot built in
// Init, or purely per-call state).
//
// Failures are split by kind (see package handler_runner/errors):
//   - InitializationError: Init could not complete. The instance never enters
//     service and is never destroyed; it must release anything it acquired
//     before returning.
//   - HandlingError and IOError: a single Service call failed. The instance
//     stays serviceable unless the error is marked Fatal, which each handler
//     documents for itself.
//   - ContractViolationError: a method was called outside its valid state.
package handler

import (
	"context"
)

// Handler is implemented by every request-handling component hosted by a
// container.
type Handler interface {
	// Init places the handler into service. cfg must not be nil; it is stored
	// and later returned unchanged by Config. Init is called at most once per
	// instance and must finish within the container's init timeout; running
	// past it counts as a failure.
	Init(ctx context.Context, cfg *Config) error

	// Config returns the configuration passed to Init.
	Config() *Config

	// Service handles one request. It may run concurrently with other Service
	// calls on the same instance and must not retain req or resp after it
	// returns. When it returns an error, resp must carry an error status.
	Service(ctx context.Context, req Request, resp Response) error

	// Info returns a plain text description of the handler, such as its
	// version. It is valid in any state.
	Info() string

	// Destroy takes the handler out of service and releases its resources.
	// It is called at most once, only after a successful Init, and only once
	// in-flight Service calls have returned or been abandoned.
	Destroy(ctx context.Context) error
}

// Factory constructs a fresh, uninitialized handler instance.
type Factory func() Handler
