package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	dberrors "handler_runner/errors"
)

// Duration is a wrapper around time.Duration to allow for custom JSON unmarshaling.
type Duration time.Duration

// UnmarshalJSON parses a string duration (e.g., "5m", "1h") into a Duration type.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Numbers are accepted as nanoseconds.
		var num int64
		if errNum := json.Unmarshal(b, &num); errNum != nil {
			return fmt.Errorf("failed to unmarshal duration as string or number: %v, %v", err, errNum)
		}
		*d = Duration(time.Duration(num))
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("failed to parse duration string %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON converts Duration to its string representation for JSON.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// ToStd converts custom Duration to standard time.Duration.
func (d Duration) ToStd() time.Duration {
	return time.Duration(d)
}

// Config represents the process configuration: the HTTP front, the container
// lifecycle limits and the handlers to host.
type Config struct {
	HTTPAddr              string            `json:"http_addr"`
	HTTPPort              int               `json:"http_port"`
	ContainerName         string            `json:"container_name"`
	InitTimeout           Duration          `json:"init_timeout"`
	DrainGracePeriod      Duration          `json:"drain_grace_period"` // 0 takes the default
	InitRetries           int               `json:"init_retries"`
	ReloadOnFatal         bool              `json:"reload_on_fatal"`
	Handlers              []HandlerConfig   `json:"handlers"`
	ConnOptions           ConnectionOptions `json:"connection_options"`
	QueryMetricName       string            `json:"query_metric_name"`
	QueryStatusMetricName string            `json:"query_status_metric_name"`
	HTTPCheckTaskTimeout  Duration          `json:"http_check_task_timeout,omitempty"`
}

// HandlerConfig declares one hosted handler. Params become the handler's
// init parameters.
type HandlerConfig struct {
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Params map[string]string `json:"params,omitempty"`
}

// ConnectionOptions defines database connection parameters
type ConnectionOptions struct {
	MaxConns        int                          `json:"max_connections"`
	MaxIdleConns    int                          `json:"max_idle_connections"`
	MaxConnLifetime Duration                     `json:"max_connection_lifetime"`
	DriverParams    map[string]map[string]string `json:"driver_params,omitempty"` // Generic parameters per driver
	ConnectTimeout  Duration                     `json:"connect_timeout"`
	QueryTimeout    Duration                     `json:"query_timeout"`
	PreparedStmts   bool                         `json:"prepared_statements"`
	NoPing          bool                         `json:"no_ping"`
}

// DefaultConfig returns a configuration with default settings
func DefaultConfig() Config {
	config := Config{
		HTTPAddr:         "0.0.0.0",
		HTTPPort:         8080,
		ContainerName:    "handler_runner",
		InitTimeout:      Duration(30 * time.Second),
		DrainGracePeriod: Duration(10 * time.Second),
		InitRetries:      0,
		ConnOptions: ConnectionOptions{
			MaxConns:        5,
			MaxIdleConns:    2,
			MaxConnLifetime: Duration(10 * time.Minute),
			DriverParams:    make(map[string]map[string]string),
			ConnectTimeout:  Duration(10 * time.Second),
			QueryTimeout:    Duration(30 * time.Second),
			PreparedStmts:   true,
		},
		QueryMetricName:       "sql_query_result",
		QueryStatusMetricName: "sql_query_status",
		HTTPCheckTaskTimeout:  Duration(15 * time.Second),
	}

	return config
}

// LoadConfig loads the configuration from a file and validates it
func LoadConfig(configPath string) (Config, error) {
	config := DefaultConfig()

	// If no config file specified, use defaults
	if configPath == "" {
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return config, err
	}

	return config, nil
}

// Validate checks lifecycle limits and the handler declarations
func (c Config) Validate() error {
	if c.InitTimeout.ToStd() <= 0 {
		return dberrors.NewConfigError("init_timeout must be positive")
	}
	if c.DrainGracePeriod.ToStd() < 0 {
		return dberrors.NewConfigError("drain_grace_period must not be negative")
	}
	if c.InitRetries < 0 {
		return dberrors.NewConfigError("init_retries must not be negative")
	}

	seen := make(map[string]struct{}, len(c.Handlers))
	for i, h := range c.Handlers {
		if h.Name == "" {
			return dberrors.NewConfigError(fmt.Sprintf("handlers[%d]: name is required", i))
		}
		if h.Type == "" {
			return dberrors.NewConfigError(fmt.Sprintf("handler %q: type is required", h.Name))
		}
		if _, ok := seen[h.Name]; ok {
			return dberrors.NewConfigError(fmt.Sprintf("handler %q declared more than once", h.Name))
		}
		seen[h.Name] = struct{}{}
	}
	return nil
}
