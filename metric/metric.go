package metric

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"

	dberrors "handler_runner/errors"

	"github.com/VictoriaMetrics/metrics"
)

// Generator turns query result rows into gauges: one series per row, named
// MetricPrefix and labelled by every column except ValueColumn.
type Generator struct {
	MetricPrefix string
	ValueColumn  string

	logger *slog.Logger
}

// NewGenerator creates a new metric generator
func NewGenerator(metricPrefix, valueColumn string) *Generator {
	if metricPrefix == "" {
		metricPrefix = "sql_query_result"
	}
	if valueColumn == "" {
		valueColumn = "value"
	}
	return &Generator{
		MetricPrefix: metricPrefix,
		ValueColumn:  valueColumn,
		logger:       slog.Default(),
	}
}

// WithLogger sets the logger rows that cannot be converted are reported to.
func (g *Generator) WithLogger(l *slog.Logger) *Generator {
	if l != nil {
		g.logger = l
	}
	return g
}

// toFloat64 converts a scanned column value to a sample value.
func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case time.Time:
		return float64(v.Unix()), nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	default:
		// Driver specific decimals usually print as a plain number.
		return strconv.ParseFloat(fmt.Sprint(value), 64)
	}
}

// labelValue renders a scanned column value as a label value.
func labelValue(value any) string {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// GenerateFromRows adds one gauge per row to set and returns how many rows
// produced a sample. Rows whose value is NULL or not numeric are skipped.
func (g *Generator) GenerateFromRows(set *metrics.Set, rows *sql.Rows) (int, error) {
	columns, err := rows.Columns()
	if err != nil {
		return 0, dberrors.NewQueryError(fmt.Sprintf("failed to get columns: %v", err))
	}

	valueColIndex := -1
	for i, col := range columns {
		if strings.EqualFold(col, g.ValueColumn) {
			valueColIndex = i
			break
		}
	}
	if valueColIndex == -1 {
		return 0, dberrors.NewQueryError(fmt.Sprintf("value column '%s' not found in result set", g.ValueColumn))
	}

	values := make([]any, len(columns))
	for i := range values {
		values[i] = new(any)
	}

	var generated int
	for rows.Next() {
		if err := rows.Scan(values...); err != nil {
			return generated, dberrors.NewQueryError(fmt.Sprintf("failed to scan row: %v", err))
		}

		val := *(values[valueColIndex].(*any))
		if val == nil {
			continue
		}

		labelParts := make([]string, 0, len(columns)-1)
		for i, col := range columns {
			if i == valueColIndex {
				continue
			}
			if v := *(values[i].(*any)); v != nil {
				labelParts = append(labelParts, fmt.Sprintf("%s=%q", col, labelValue(v)))
			}
		}

		metricName := g.MetricPrefix
		if len(labelParts) > 0 {
			metricName += "{" + strings.Join(labelParts, ",") + "}"
		}

		floatVal, err := toFloat64(val)
		if err != nil {
			g.logger.Warn("Skipping row with non-numeric value", "metric", metricName, "type", fmt.Sprintf("%T", val), "error", err)
			continue
		}
		set.GetOrCreateGauge(metricName, nil).Set(floatVal)
		generated++
	}

	if err := rows.Err(); err != nil {
		return generated, dberrors.NewQueryError(fmt.Sprintf("error iterating rows: %v", err))
	}
	return generated, nil
}

// RecordQueryStatus sets metricName{query=...} to 1 when err is nil, or to 0
// with an error label carrying the message.
func RecordQueryStatus(set *metrics.Set, metricName string, query string, err error) {
	statusValue := 1.0
	labels := fmt.Sprintf(`{query=%q}`, query)
	if err != nil {
		statusValue = 0
		labels = fmt.Sprintf(`{query=%q,error=%q}`, query, err.Error())
	}
	set.GetOrCreateGauge(metricName+labels, nil).Set(statusValue)
}

// WriteMetrics writes the metrics in Prometheus format to the given writer.
func WriteMetrics(w io.Writer, set *metrics.Set) {
	set.WritePrometheus(w)
}
