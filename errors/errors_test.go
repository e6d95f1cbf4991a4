package errors_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "handler_runner/errors"
)

func TestTaxonomyIsDistinct(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   error
	}{
		{"initialization", herrors.NewInitializationError("h", nil), herrors.ErrInitialization},
		{"handling", herrors.NewHandlingError(http.StatusBadRequest, "bad"), herrors.ErrHandling},
		{"io", herrors.NewIOError("read", nil), herrors.ErrIO},
		{"contract violation", herrors.NewContractViolation("service", "destroyed"), herrors.ErrContractViolation},
	}
	kinds := []error{herrors.ErrInitialization, herrors.ErrHandling, herrors.ErrIO, herrors.ErrContractViolation}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			for _, kind := range kinds {
				assert.Equal(t, kind == tt.is, errors.Is(wrapped, kind), "errors.Is(%v, %v)", tt.err, kind)
			}
		})
	}
}

func TestCausesUnwrap(t *testing.T) {
	ie := herrors.NewInitializationError("sql", context.DeadlineExceeded)
	require.ErrorIs(t, ie, context.DeadlineExceeded)
	assert.Contains(t, ie.Error(), `"sql"`)

	he := herrors.NewHandlingError(http.StatusServiceUnavailable, "cancelled").WithCause(context.Canceled)
	require.ErrorIs(t, he, context.Canceled)
	assert.Contains(t, he.Error(), "context canceled")

	ioe := herrors.NewIOError("write", context.Canceled)
	require.ErrorIs(t, ioe, context.Canceled)
}

func TestInvalidArgumentIsAContractViolation(t *testing.T) {
	err := herrors.NewInvalidArgumentError("config", "must not be nil")
	assert.ErrorIs(t, err, herrors.ErrInvalidArgument)
	assert.ErrorIs(t, err, herrors.ErrContractViolation)
	assert.Equal(t, "config", err.Arg)
}

func TestIsFatal(t *testing.T) {
	assert.False(t, herrors.IsFatal(nil))
	assert.False(t, herrors.IsFatal(herrors.NewHandlingError(http.StatusInternalServerError, "x")))
	assert.False(t, herrors.IsFatal(herrors.NewIOError("x", nil)))

	fatal := herrors.NewHandlingError(http.StatusServiceUnavailable, "db gone").AsFatal()
	assert.True(t, herrors.IsFatal(fatal))
	assert.True(t, herrors.IsFatal(fmt.Errorf("dispatch: %w", fatal)))
}

func TestContractViolationFields(t *testing.T) {
	var cv *herrors.ContractViolationError
	err := fmt.Errorf("wrapped: %w", herrors.NewContractViolation("destroy", "failed"))
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "destroy", cv.Op)
	assert.Equal(t, "failed", cv.State)
	assert.Equal(t, "Contract violation: destroy called in state failed", cv.Error())
}

func TestQueryErrorKeepsDriverCause(t *testing.T) {
	cause := errors.New("no such column: x")
	err := herrors.NewQueryError("execute query failed: no such column: x").WithCause(cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "Query error: execute query failed: no such column: x", err.Error())
	assert.Nil(t, herrors.NewQueryError("plain").Unwrap())
}
