// Package sql hosts a handler that runs SQL queries against a connection pool
// it opens in Init and closes in Destroy, returning the results as Prometheus
// metrics.
//
// Failure policy: malformed requests and statements the database rejects fail
// with a HandlingError carrying status 400. A query that times out or loses its
// connection fails with an IOError. When a query fails and the pool can no
// longer be pinged, the instance has lost its database: the failure is
// returned as a fatal HandlingError so the container replaces the instance.
//
// Init parameters: type, username, password, host, port, db (or a complete
// dsn), metric_prefix, status_metric, value_column.
//
// Request parameters: query (required), metric_prefix, value_column.
package sql

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net/http"

	"github.com/VictoriaMetrics/metrics"

	"handler_runner/config"
	"handler_runner/db"
	herrors "handler_runner/errors"
	"handler_runner/handler"
	"handler_runner/metric"
)

const contentType = "text/plain; version=0.0.4"

// Opener opens the handler's connection pool.
type Opener func(ctx context.Context, dsn string, connOpts config.ConnectionOptions) (*db.Connection, error)

// Option configures a Handler.
type Option func(*Handler)

// WithOpener replaces db.Open.
func WithOpener(open Opener) Option {
	return func(h *Handler) { h.open = open }
}

// Handler serves SQL query requests from a pool owned by the instance.
type Handler struct {
	handler.Base

	connOpts config.ConnectionOptions
	open     Opener

	// Set once in Init, read-only afterwards.
	conn         *db.Connection
	metricPrefix string
	statusMetric string
	valueColumn  string
}

// New creates an uninitialized SQL handler.
func New(connOpts config.ConnectionOptions, opts ...Option) *Handler {
	h := &Handler{
		Base:     handler.Base{Description: "sql: runs queries and reports results as Prometheus metrics"},
		connOpts: connOpts,
		open:     db.Open,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Init opens and pings the connection pool.
func (h *Handler) Init(ctx context.Context, cfg *handler.Config) error {
	if err := h.Base.Init(ctx, cfg); err != nil {
		return err
	}

	dsn, err := dsnFromConfig(cfg)
	if err != nil {
		return herrors.NewInitializationError(cfg.Name(), err)
	}

	conn, err := h.open(ctx, dsn, h.connOpts)
	if err != nil {
		return herrors.NewInitializationError(cfg.Name(), err)
	}

	h.conn = conn
	h.metricPrefix = cfg.ParamOr("metric_prefix", "sql_query_result")
	h.statusMetric = cfg.ParamOr("status_metric", "sql_query_status")
	h.valueColumn = cfg.ParamOr("value_column", "value")
	return nil
}

func dsnFromConfig(cfg *handler.Config) (string, error) {
	if dsn := cfg.Param("dsn"); dsn != "" {
		return dsn, nil
	}

	dbType := cfg.Param("type")
	if dbType == "" {
		return "", fmt.Errorf("missing required parameter: type")
	}
	username := cfg.Param("username")
	host := cfg.Param("host")
	database := cfg.Param("db")

	if db.IsSQLite(dbType) {
		if database == "" {
			return "", fmt.Errorf("missing required parameter: db (database file path for SQLite)")
		}
	} else if username == "" || host == "" || database == "" {
		return "", fmt.Errorf("missing required connection parameters (username, host, db) for non-SQLite types")
	}

	return db.BuildDSN(dbType, username, cfg.Param("password"), host, cfg.Param("port"), database)
}

// Service runs the query request parameter and writes the metrics.
func (h *Handler) Service(ctx context.Context, req handler.Request, resp handler.Response) error {
	if m := req.Method(); m != "" && m != http.MethodGet {
		resp.SetStatus(http.StatusMethodNotAllowed)
		return herrors.NewHandlingError(http.StatusMethodNotAllowed, "method not allowed")
	}

	sqlQuery := req.Param("query")
	if sqlQuery == "" {
		resp.SetStatus(http.StatusBadRequest)
		return herrors.NewHandlingError(http.StatusBadRequest, "missing required parameter: query")
	}

	metricPrefix := req.Param("metric_prefix")
	if metricPrefix == "" {
		metricPrefix = h.metricPrefix
	}
	valueColumn := req.Param("value_column")
	if valueColumn == "" {
		valueColumn = h.valueColumn
	}

	set := metrics.NewSet()

	queryCtx := ctx
	if timeout := h.connOpts.QueryTimeout.ToStd(); timeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rows, err := h.conn.ExecuteQuery(queryCtx, sqlQuery)
	if err != nil {
		metric.RecordQueryStatus(set, h.statusMetric, sqlQuery, err)
		failure := h.queryFailure(ctx, queryCtx, err)
		status := handler.StatusFor(failure)
		if errors.Is(failure, herrors.ErrIO) && errors.Is(queryCtx.Err(), context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		return h.write(resp, set, status, failure)
	}
	defer rows.Close()

	generated, err := metric.NewGenerator(metricPrefix, valueColumn).WithLogger(h.Logger()).GenerateFromRows(set, rows)
	if err != nil {
		metric.RecordQueryStatus(set, h.statusMetric, sqlQuery, err)
		failure := herrors.NewHandlingError(http.StatusInternalServerError, "failed to generate metrics").WithCause(err)
		return h.write(resp, set, failure.Status, failure)
	}
	h.Logger().Debug("Query served", "request_id", req.ID(), "series", generated)

	metric.RecordQueryStatus(set, h.statusMetric, sqlQuery, nil)
	return h.write(resp, set, http.StatusOK, nil)
}

// queryFailure classifies a failed query. An unreachable pool is fatal to the
// instance. A timed out query or a broken connection is an IO failure.
// Anything else was rejected by the database and is the request's fault.
func (h *Handler) queryFailure(ctx, queryCtx context.Context, err error) error {
	if ctx.Err() != nil {
		// The caller went away; the pool says nothing about that.
		return herrors.NewIOError("query abandoned", err)
	}
	if pingErr := h.conn.Ping(ctx); pingErr != nil {
		h.Logger().Error("Database unreachable", "error", pingErr)
		return herrors.NewHandlingError(http.StatusServiceUnavailable, "database unreachable").WithCause(pingErr).AsFatal()
	}
	if queryCtx.Err() != nil || errors.Is(err, driver.ErrBadConn) {
		return herrors.NewIOError("failed to execute query", err)
	}
	return herrors.NewHandlingError(http.StatusBadRequest, "query rejected").WithCause(err)
}

// write sets the status and writes the metric set; err is returned as is
// unless the write itself fails.
func (h *Handler) write(resp handler.Response, set *metrics.Set, status int, err error) error {
	var buf bytes.Buffer
	metric.WriteMetrics(&buf, set)

	resp.SetContentType(contentType)
	resp.SetStatus(status)
	if _, werr := resp.Write(buf.Bytes()); werr != nil && err == nil {
		resp.SetStatus(http.StatusInternalServerError)
		return herrors.NewIOError("write response", werr)
	}
	return err
}

// Destroy closes the pool.
func (h *Handler) Destroy(context.Context) error {
	if h.conn == nil {
		return nil
	}
	return h.conn.Close()
}
