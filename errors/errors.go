package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinels for errors.Is matching across the failure taxonomy.
var (
	ErrInitialization    = stderrors.New("initialization failure")
	ErrHandling          = stderrors.New("handling failure")
	ErrIO                = stderrors.New("io failure")
	ErrContractViolation = stderrors.New("contract violation")
	ErrInvalidArgument   = stderrors.New("invalid argument")
	ErrNotFound          = stderrors.New("handler not found")
)

// BaseError represents a basic error with a message
type BaseError struct {
	Message string
}

func (e BaseError) Error() string {
	return e.Message
}

// InitializationError is returned when a handler could not complete its setup,
// including when setup did not finish within the container's init timeout.
// An instance that produced it never enters service.
type InitializationError struct {
	BaseError
	Handler string
	Cause   error
}

// NewInitializationError creates a new initialization error for the named handler
func NewInitializationError(handler string, cause error) *InitializationError {
	msg := fmt.Sprintf("Initialization error: handler %q", handler)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &InitializationError{
		BaseError: BaseError{Message: msg},
		Handler:   handler,
		Cause:     cause,
	}
}

func (e *InitializationError) Unwrap() error { return e.Cause }

func (e *InitializationError) Is(target error) bool { return target == ErrInitialization }

// HandlingError signals a processing error attributable to handler logic during
// a single service call. Status is the response status the failure maps to.
// Fatal marks the failure as invalidating the instance; handlers that set it
// must say so in their package documentation.
type HandlingError struct {
	BaseError
	Status int
	Fatal  bool
	Cause  error
}

// NewHandlingError creates a new handling error with the given response status
func NewHandlingError(status int, message string) *HandlingError {
	return &HandlingError{
		BaseError: BaseError{Message: fmt.Sprintf("Handling error: %s", message)},
		Status:    status,
	}
}

// WithCause attaches the underlying error
func (e *HandlingError) WithCause(cause error) *HandlingError {
	e.Cause = cause
	if cause != nil {
		e.Message = fmt.Sprintf("%s: %v", e.Message, cause)
	}
	return e
}

// AsFatal marks the error as fatal to the handler instance
func (e *HandlingError) AsFatal() *HandlingError {
	e.Fatal = true
	return e
}

func (e *HandlingError) Unwrap() error { return e.Cause }

func (e *HandlingError) Is(target error) bool { return target == ErrHandling }

// IOError signals a failure in the underlying read/write transport of a single
// service call. It is kept apart from HandlingError so callers can apply a
// different retry and logging policy.
type IOError struct {
	BaseError
	Cause error
}

// NewIOError creates a new IO error
func NewIOError(message string, cause error) *IOError {
	msg := fmt.Sprintf("IO error: %s", message)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &IOError{
		BaseError: BaseError{Message: msg},
		Cause:     cause,
	}
}

func (e *IOError) Unwrap() error { return e.Cause }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// ContractViolationError is returned when a lifecycle method is invoked outside
// the state it is valid in, e.g. service before init completed or any call
// after destroy began. It is never recovered from.
type ContractViolationError struct {
	BaseError
	Op    string
	State string
}

// NewContractViolation creates a new contract violation for op attempted in state
func NewContractViolation(op, state string) *ContractViolationError {
	return &ContractViolationError{
		BaseError: BaseError{Message: fmt.Sprintf("Contract violation: %s called in state %s", op, state)},
		Op:        op,
		State:     state,
	}
}

func (e *ContractViolationError) Is(target error) bool { return target == ErrContractViolation }

// InvalidArgumentError is a caller contract violation caused by a bad argument,
// such as a nil configuration passed to Init.
type InvalidArgumentError struct {
	BaseError
	Arg string
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(arg, message string) *InvalidArgumentError {
	return &InvalidArgumentError{
		BaseError: BaseError{Message: fmt.Sprintf("Invalid argument %s: %s", arg, message)},
		Arg:       arg,
	}
}

func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument || target == ErrContractViolation
}

// IsFatal reports whether err carries a handling failure marked fatal to its instance
func IsFatal(err error) bool {
	var he *HandlingError
	return stderrors.As(err, &he) && he.Fatal
}

// DBError represents a database-related error
type DBError struct {
	BaseError
}

// NewDBError creates a new database error
func NewDBError(message string) *DBError {
	return &DBError{
		BaseError: BaseError{
			Message: fmt.Sprintf("Database error: %s", message),
		},
	}
}

// QueryError represents an error during query execution
type QueryError struct {
	BaseError
	Cause error
}

// NewQueryError creates a new query error
func NewQueryError(message string) *QueryError {
	return &QueryError{
		BaseError: BaseError{
			Message: fmt.Sprintf("Query error: %s", message),
		},
	}
}

// WithCause keeps the driver error reachable through errors.Is and errors.As.
// The message is left as is.
func (e *QueryError) WithCause(cause error) *QueryError {
	e.Cause = cause
	return e
}

func (e *QueryError) Unwrap() error { return e.Cause }

// ConfigError represents a configuration error
type ConfigError struct {
	BaseError
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *ConfigError {
	return &ConfigError{
		BaseError: BaseError{
			Message: fmt.Sprintf("Configuration error: %s", message),
		},
	}
}

// ServerError represents a server-related error
type ServerError struct {
	BaseError
}

// NewServerError creates a new server error
func NewServerError(message string) *ServerError {
	return &ServerError{
		BaseError: BaseError{
			Message: fmt.Sprintf("Server error: %s", message),
		},
	}
}
