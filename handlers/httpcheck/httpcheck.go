// Package httpcheck hosts a handler that checks a target URL and reports the
// outcome as Prometheus metrics.
//
// Failures are never fatal to the instance: a target that cannot be reached
// is reported as an IOError with status 503, or 504 when the check times out.
//
// Init parameters: timeout (default 15s), expected_status (default 200).
//
// Request parameters: target_url (required), method, expected_status, timeout.
package httpcheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"

	herrors "handler_runner/errors"
	"handler_runner/handler"
	"handler_runner/metric"
)

const (
	DefaultHTTPCheckTimeout   = 15 * time.Second
	DefaultExpectedStatusCode = http.StatusOK
	MetricPrefix              = "http_check"
)

// Handler checks HTTP targets with a client owned by the instance.
type Handler struct {
	handler.Base

	// Set once in Init, read-only afterwards.
	transport      *http.Transport
	client         *http.Client
	timeout        time.Duration
	expectedStatus int
}

// New creates an uninitialized HTTP check handler.
func New() *Handler {
	return &Handler{Base: handler.Base{Description: "http_check: checks a target URL and reports availability metrics"}}
}

// Init builds the HTTP client.
func (h *Handler) Init(ctx context.Context, cfg *handler.Config) error {
	if err := h.Base.Init(ctx, cfg); err != nil {
		return err
	}

	h.timeout = DefaultHTTPCheckTimeout
	if v := cfg.Param("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return herrors.NewInitializationError(cfg.Name(), fmt.Errorf("invalid timeout %q", v))
		}
		h.timeout = d
	}

	h.expectedStatus = DefaultExpectedStatusCode
	if v := cfg.Param("expected_status"); v != "" {
		code, err := strconv.Atoi(v)
		if err != nil {
			return herrors.NewInitializationError(cfg.Name(), fmt.Errorf("invalid expected_status: %w", err))
		}
		h.expectedStatus = code
	}

	h.transport = http.DefaultTransport.(*http.Transport).Clone()
	h.client = &http.Client{Transport: h.transport}
	return nil
}

// Service performs the check described by the request parameters.
func (h *Handler) Service(ctx context.Context, req handler.Request, resp handler.Response) error {
	if m := req.Method(); m != "" && m != http.MethodGet {
		resp.SetStatus(http.StatusMethodNotAllowed)
		return herrors.NewHandlingError(http.StatusMethodNotAllowed, "method not allowed for http_check endpoint, use GET")
	}

	targetURL := req.Param("target_url")
	if targetURL == "" {
		resp.SetStatus(http.StatusBadRequest)
		return herrors.NewHandlingError(http.StatusBadRequest, "missing required parameter: target_url")
	}

	method := strings.ToUpper(req.Param("method"))
	if method == "" {
		method = http.MethodGet
	}

	expectedStatus := h.expectedStatus
	if v := req.Param("expected_status"); v != "" {
		code, err := strconv.Atoi(v)
		if err != nil {
			resp.SetStatus(http.StatusBadRequest)
			return herrors.NewHandlingError(http.StatusBadRequest, "invalid expected_status").WithCause(err)
		}
		expectedStatus = code
	}

	timeout := h.timeout
	if v := req.Param("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			resp.SetStatus(http.StatusBadRequest)
			return herrors.NewHandlingError(http.StatusBadRequest, "invalid timeout duration").WithCause(err)
		}
		timeout = d
	}

	set := metrics.NewSet()

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	checkReq, err := http.NewRequestWithContext(checkCtx, method, targetURL, nil)
	if err != nil {
		record(set, targetURL, method, 0, 0, 0, err)
		return write(resp, set, http.StatusBadRequest,
			herrors.NewHandlingError(http.StatusBadRequest, fmt.Sprintf("failed to create request for target_url %s", targetURL)).WithCause(err))
	}

	start := time.Now()
	res, err := h.client.Do(checkReq)
	duration := time.Since(start)
	if err != nil {
		record(set, targetURL, method, 0, duration, 0, err)
		if errors.Is(err, context.DeadlineExceeded) {
			return write(resp, set, http.StatusGatewayTimeout,
				herrors.NewIOError(fmt.Sprintf("request to target_url %s timed out", targetURL), err))
		}
		return write(resp, set, http.StatusServiceUnavailable,
			herrors.NewIOError(fmt.Sprintf("request to target_url %s failed", targetURL), err))
	}
	defer res.Body.Close()

	// Drain the body so the connection can be reused.
	_, _ = io.Copy(io.Discard, res.Body)

	var success float64
	if res.StatusCode == expectedStatus {
		success = 1
	}
	record(set, targetURL, method, success, duration, res.StatusCode, nil)
	return write(resp, set, http.StatusOK, nil)
}

func record(set *metrics.Set, targetURL, method string, success float64, duration time.Duration, actualStatus int, reqErr error) {
	labels := fmt.Sprintf(`{target_url=%q, method=%q}`, targetURL, method)
	if actualStatus > 0 {
		labels = fmt.Sprintf(`{target_url=%q, method=%q, status_code="%d"}`, targetURL, method, actualStatus)
	}
	if reqErr != nil {
		labels = fmt.Sprintf(`{target_url=%q, method=%q, error=%q}`, targetURL, method, reqErr.Error())
	}

	set.GetOrCreateGauge(MetricPrefix+"_up"+labels, nil).Set(success)
	set.GetOrCreateGauge(MetricPrefix+"_duration_seconds"+labels, nil).Set(duration.Seconds())
	if actualStatus > 0 {
		set.GetOrCreateGauge(MetricPrefix+"_status_code"+labels, nil).Set(float64(actualStatus))
	}
}

func write(resp handler.Response, set *metrics.Set, status int, err error) error {
	var buf bytes.Buffer
	metric.WriteMetrics(&buf, set)

	resp.SetContentType("text/plain; version=0.0.4")
	resp.SetStatus(status)
	if _, werr := resp.Write(buf.Bytes()); werr != nil && err == nil {
		resp.SetStatus(http.StatusInternalServerError)
		return herrors.NewIOError("write response", werr)
	}
	return err
}

// Destroy closes idle connections held by the client.
func (h *Handler) Destroy(context.Context) error {
	if h.transport != nil {
		h.transport.CloseIdleConnections()
	}
	return nil
}
