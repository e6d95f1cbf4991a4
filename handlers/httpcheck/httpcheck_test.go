package httpcheck_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	herrors "handler_runner/errors"
	"handler_runner/handler"
	"handler_runner/handlers/httpcheck"
)

func newHandler(t *testing.T, params map[string]string) *httpcheck.Handler {
	t.Helper()
	h := httpcheck.New()
	if err := h.Init(context.Background(), handler.NewConfig("check", params, nil)); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = h.Destroy(context.Background()) })
	return h
}

func check(h *httpcheck.Handler, params url.Values) (*handler.MemoryResponse, error) {
	resp := handler.NewResponse()
	err := h.Service(context.Background(), handler.NewRequest("1", http.MethodGet, params, nil), resp)
	return resp, err
}

func TestService_Success(t *testing.T) {
	targetServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "Hello, client")
	}))
	defer targetServer.Close()

	h := newHandler(t, nil)
	resp, err := check(h, url.Values{"target_url": {targetServer.URL}, "expected_status": {"200"}})

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.Status() != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, resp.Status())
	}

	metricStr := resp.String()
	expectedMetrics := []string{
		fmt.Sprintf(`http_check_up{target_url="%s", method="GET", status_code="200"} 1`, targetServer.URL),
		fmt.Sprintf(`http_check_duration_seconds{target_url="%s", method="GET", status_code="200"}`, targetServer.URL),
		fmt.Sprintf(`http_check_status_code{target_url="%s", method="GET", status_code="200"} 200`, targetServer.URL),
	}
	for _, expected := range expectedMetrics {
		if !strings.Contains(metricStr, expected) {
			t.Errorf("Expected metrics to contain %q, but it didn't. Metrics:\n%s", expected, metricStr)
		}
	}
}

func TestService_StatusMismatch(t *testing.T) {
	targetServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer targetServer.Close()

	h := newHandler(t, nil)
	resp, err := check(h, url.Values{"target_url": {targetServer.URL}})

	// The check result is in the metrics, the call itself succeeds.
	if err != nil {
		t.Fatalf("Expected no error from handler itself, got %v", err)
	}
	if resp.Status() != http.StatusOK {
		t.Errorf("Expected handler status code %d, got %d", http.StatusOK, resp.Status())
	}
	expected := fmt.Sprintf(`http_check_up{target_url="%s", method="GET", status_code="404"} 0`, targetServer.URL)
	if !strings.Contains(resp.String(), expected) {
		t.Errorf("Expected metrics to contain %q. Metrics:\n%s", expected, resp.String())
	}
}

func TestService_ExpectedStatusFromInit(t *testing.T) {
	targetServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer targetServer.Close()

	h := newHandler(t, map[string]string{"expected_status": "204"})
	resp, err := check(h, url.Values{"target_url": {targetServer.URL}})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	expected := fmt.Sprintf(`http_check_up{target_url="%s", method="GET", status_code="204"} 1`, targetServer.URL)
	if !strings.Contains(resp.String(), expected) {
		t.Errorf("Expected metrics to contain %q. Metrics:\n%s", expected, resp.String())
	}
}

func TestService_TargetDown(t *testing.T) {
	targetServer := httptest.NewServer(http.NotFoundHandler())
	downURL := targetServer.URL + "/shouldnotexist"
	targetServer.Close()

	h := newHandler(t, nil)
	resp, err := check(h, url.Values{"target_url": {downURL}})

	if !errors.Is(err, herrors.ErrIO) {
		t.Fatalf("Expected an IO error when target is down, got %v", err)
	}
	if herrors.IsFatal(err) {
		t.Errorf("Unreachable targets must not be fatal to the handler")
	}
	if resp.Status() != http.StatusServiceUnavailable {
		t.Errorf("Expected status code %d, got %d", http.StatusServiceUnavailable, resp.Status())
	}
	if !strings.Contains(resp.String(), fmt.Sprintf(`http_check_up{target_url="%s", method="GET", error=`, downURL)) {
		t.Errorf("Expected metrics to contain an error label for target_url. Metrics:\n%s", resp.String())
	}
}

func TestService_Timeout(t *testing.T) {
	targetServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer targetServer.Close()

	h := newHandler(t, map[string]string{"timeout": "50ms"})
	resp, err := check(h, url.Values{"target_url": {targetServer.URL}})

	if err == nil {
		t.Fatalf("Expected an error when request times out, got nil")
	}
	if resp.Status() != http.StatusGatewayTimeout {
		t.Errorf("Expected status code %d, got %d", http.StatusGatewayTimeout, resp.Status())
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected error to wrap context deadline exceeded, got '%v'", err)
	}
}

func TestService_BadRequests(t *testing.T) {
	h := newHandler(t, nil)

	tests := []struct {
		name    string
		params  url.Values
		message string
	}{
		{"missing target", url.Values{"method": {"POST"}}, "missing required parameter: target_url"},
		{"bad expected status", url.Values{"target_url": {"http://example.com"}, "expected_status": {"notanumber"}}, "invalid expected_status"},
		{"bad timeout", url.Values{"target_url": {"http://example.com"}, "timeout": {"notaduration"}}, "invalid timeout duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := check(h, tt.params)
			if !errors.Is(err, herrors.ErrHandling) {
				t.Fatalf("Expected a handling error, got %v", err)
			}
			if resp.Status() != http.StatusBadRequest {
				t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, resp.Status())
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("Expected error message to contain %q, got %q", tt.message, err.Error())
			}
		})
	}
}

func TestInit_InvalidParams(t *testing.T) {
	for _, params := range []map[string]string{
		{"timeout": "soon"},
		{"timeout": "-1s"},
		{"expected_status": "ok"},
	} {
		err := httpcheck.New().Init(context.Background(), handler.NewConfig("check", params, nil))
		if !errors.Is(err, herrors.ErrInitialization) {
			t.Errorf("Init(%v) = %v, want an initialization error", params, err)
		}
	}
}
