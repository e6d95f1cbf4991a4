package server

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"handler_runner/config"
	"handler_runner/container"
	"handler_runner/metric"
)

// DispatchPrefix is the path prefix under which hosted handlers are reachable:
// /h/{name}.
const DispatchPrefix = "/h/"

// Server is the HTTP front of a container.
type Server struct {
	Config    config.Config
	Container *container.Container
	server    *http.Server
}

// New creates a new server instance
func New(cfg config.Config, c *container.Container) *Server {
	s := &Server{
		Config:    cfg,
		Container: c,
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTPAddr, cfg.HTTPPort),
		Handler:      http.HandlerFunc(s.HandleRequest),
		ReadTimeout:  cfg.ConnOptions.ConnectTimeout.ToStd(),
		WriteTimeout: cfg.ConnOptions.QueryTimeout.ToStd(),
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	slog.Info("Starting handler runner", "address", s.server.Addr)
	return s.server.ListenAndServe()
}

// Serve serves on ln until Stop.
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("Starting handler runner", "address", ln.Addr().String())
	return s.server.Serve(ln)
}

// HandleRequest handles an HTTP request - useful for testing
func (s *Server) HandleRequest(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case strings.HasPrefix(path, DispatchPrefix):
		s.handleDispatch(w, r)
	case path == "/metrics":
		s.handleAppMetrics(w, r)
	case path == "/metrics/lifecycle":
		s.handleLifecycleMetrics(w, r)
	case path == "/health":
		s.handleHealth(w, r)
	case path == "/":
		s.handleRoot(w, r)
	default:
		s.incrementRequestCounter(metric.UnknownHandler, r.Method, http.StatusNotFound)
		http.NotFound(w, r)
	}
}

// Stop stops accepting connections, waits for in-flight HTTP requests and then
// destroys every hosted handler. The handlers are destroyed even when ctx ends
// before the HTTP requests did.
func (s *Server) Stop(ctx context.Context) error {
	httpErr := s.server.Shutdown(ctx)
	if httpErr != nil {
		slog.Warn("HTTP shutdown incomplete", "error", httpErr)
	}
	return errors.Join(httpErr, s.Container.Shutdown(ctx))
}

// knownMethods bounds the method label; anything else is counted as "other".
var knownMethods = map[string]bool{
	http.MethodGet: true, http.MethodHead: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true, http.MethodOptions: true,
}

func (s *Server) incrementRequestCounter(handlerPath, method string, statusCode int) {
	if !knownMethods[method] {
		method = "other"
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`http_requests_total{handler=%q,method=%q,status_code="%d"}`, handlerPath, method, statusCode)).Inc()
}

// handleDispatch hands the request to the container.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, DispatchPrefix)

	req := newHTTPRequest(r)
	requestID := req.ID()
	if requestID == "" {
		requestID = uuid.NewString()
		r.Header.Set(RequestIDHeader, requestID)
	}

	resp := &httpResponse{}
	err := s.Container.Service(r.Context(), name, req, resp)
	if err != nil {
		slog.Debug("Dispatch failed", "handler", name, "request_id", requestID, "status", resp.Status(), "error", err)
	}
	if ferr := resp.flush(w, requestID, err); ferr != nil {
		slog.Warn("Failed to write response", "handler", name, "request_id", requestID, "error", ferr)
	}
	label := metric.UnknownHandler
	if s.Container.Registered(name) {
		label = DispatchPrefix + name
	}
	s.incrementRequestCounter(label, r.Method, resp.Status())
}

// handleAppMetrics serves application-level metrics (e.g., request counters)
func (s *Server) handleAppMetrics(w http.ResponseWriter, r *http.Request) {
	s.incrementRequestCounter("/metrics", r.Method, http.StatusOK)
	w.Header().Set("Content-Type", "text/plain")
	metrics.WritePrometheus(w, false)
}

// handleLifecycleMetrics serves the container's lifecycle collectors
func (s *Server) handleLifecycleMetrics(w http.ResponseWriter, r *http.Request) {
	s.incrementRequestCounter("/metrics/lifecycle", r.Method, http.StatusOK)
	promhttp.HandlerFor(s.Container.Lifecycle().Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.incrementRequestCounter("/health", r.Method, http.StatusOK)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// handleRoot lists the hosted handlers
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.incrementRequestCounter("/", r.Method, http.StatusOK)
	w.Header().Set("Content-Type", "text/html")

	var rows strings.Builder
	for _, st := range s.Container.Handlers() {
		fmt.Fprintf(&rows, "\t\t\t<tr><td><code>%s%s</code></td><td>%s</td><td>%s</td></tr>\n",
			DispatchPrefix, html.EscapeString(st.Name), st.State, html.EscapeString(st.Info))
	}

	fmt.Fprintf(w, `
	<html>
	<head>
		<title>Handler Runner</title>
		<style>
			body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 0 auto; padding: 20px; }
			h1 { color: #333; }
			code { background-color: #f4f4f4; padding: 2px 5px; border-radius: 3px; }
			table { border-collapse: collapse; width: 100%%; }
			th, td { text-align: left; padding: 8px; border-bottom: 1px solid #ddd; }
			th { background-color: #f2f2f2; }
		</style>
	</head>
	<body>
		<h1>Handler Runner</h1>
		<p>%s</p>
		<table>
			<tr>
				<th>Endpoint</th>
				<th>State</th>
				<th>Info</th>
			</tr>
%s		</table>

		<h2>Other Endpoints</h2>
		<ul>
			<li><a href="/metrics">/metrics</a> - Application operational metrics (Prometheus exporter)</li>
			<li><a href="/metrics/lifecycle">/metrics/lifecycle</a> - Handler lifecycle metrics</li>
			<li><a href="/health">/health</a> - Health Check</li>
		</ul>
	</body>
	</html>
	`, html.EscapeString(s.Container.Info()), rows.String())
}
