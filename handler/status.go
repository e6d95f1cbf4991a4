package handler

import (
	"errors"
	"net/http"

	herrors "handler_runner/errors"
)

// StatusFor maps an error to the response status that reports it.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var he *herrors.HandlingError
	switch {
	case errors.As(err, &he):
		if he.Status >= http.StatusBadRequest {
			return he.Status
		}
		return http.StatusInternalServerError
	case errors.Is(err, herrors.ErrIO):
		return http.StatusBadGateway
	case errors.Is(err, herrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, herrors.ErrContractViolation), errors.Is(err, herrors.ErrInitialization):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// SetError makes resp report err. A status the handler already set is kept
// as long as it is an error status.
func SetError(resp Response, err error) {
	if err == nil {
		return
	}
	if resp.Status() >= http.StatusBadRequest {
		return
	}
	resp.SetStatus(StatusFor(err))
}
