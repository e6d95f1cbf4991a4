// Package handlers maps the handler types named in the configuration to
// factories and registers the configured handlers with a container.
package handlers

import (
	"fmt"
	"maps"
	"sort"

	"handler_runner/config"
	herrors "handler_runner/errors"
	"handler_runner/handler"
	"handler_runner/handlers/echo"
	"handler_runner/handlers/httpcheck"
	"handler_runner/handlers/sql"
)

// Handler types accepted in config.HandlerConfig.Type.
const (
	TypeEcho      = "echo"
	TypeSQL       = "sql"
	TypeHTTPCheck = "http_check"
)

// Registrar accepts handler registrations.
type Registrar interface {
	Register(name string, factory handler.Factory, params map[string]string) error
}

// Types returns the known handler types, sorted.
func Types() []string {
	types := []string{TypeEcho, TypeSQL, TypeHTTPCheck}
	sort.Strings(types)
	return types
}

// Factory returns the factory for a handler type.
func Factory(cfg config.Config, typ string) (handler.Factory, error) {
	switch typ {
	case TypeEcho:
		return func() handler.Handler { return echo.New() }, nil
	case TypeSQL:
		return func() handler.Handler { return sql.New(cfg.ConnOptions) }, nil
	case TypeHTTPCheck:
		return func() handler.Handler { return httpcheck.New() }, nil
	default:
		return nil, herrors.NewConfigError(fmt.Sprintf("unknown handler type %q (known: %v)", typ, Types()))
	}
}

// Params returns the init parameters for hc: its own params over the
// process-wide defaults for its type.
func Params(cfg config.Config, hc config.HandlerConfig) map[string]string {
	params := map[string]string{}
	switch hc.Type {
	case TypeSQL:
		params["metric_prefix"] = cfg.QueryMetricName
		params["status_metric"] = cfg.QueryStatusMetricName
	case TypeHTTPCheck:
		if d := cfg.HTTPCheckTaskTimeout.ToStd(); d > 0 {
			params["timeout"] = d.String()
		}
	}
	maps.Copy(params, hc.Params)
	return params
}

// RegisterAll registers every handler declared in cfg.
func RegisterAll(r Registrar, cfg config.Config) error {
	for _, hc := range cfg.Handlers {
		factory, err := Factory(cfg, hc.Type)
		if err != nil {
			return err
		}
		if err := r.Register(hc.Name, factory, Params(cfg, hc)); err != nil {
			return err
		}
	}
	return nil
}
