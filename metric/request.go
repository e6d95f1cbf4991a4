package metric

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// Outcomes recorded by RecordRequest.
const (
	OutcomeOK       = "ok"
	OutcomeHandling = "handling_error"
	OutcomeIO       = "io_error"
	OutcomeRejected = "rejected"
	OutcomeNotFound = "not_found"
)

// UnknownHandler is the handler label for requests naming no registered
// handler. Such names come from clients and never become label values.
const UnknownHandler = "unknown"

// RecordRequest counts one dispatched service call on the default VictoriaMetrics
// set and records its duration.
func RecordRequest(handlerName, outcome string, d time.Duration) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`handler_requests_total{handler=%q,outcome=%q}`, handlerName, outcome)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`handler_request_duration_seconds{handler=%q}`, handlerName)).Update(d.Seconds())
}
