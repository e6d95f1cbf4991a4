package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"handler_runner/handler"
)

// Lifecycle collects handler lifecycle telemetry on a private Prometheus
// registry. A nil *Lifecycle discards everything.
type Lifecycle struct {
	registry *prometheus.Registry

	state           *prometheus.GaugeVec
	initDuration    *prometheus.HistogramVec
	destroyDuration *prometheus.HistogramVec
	initFailures    *prometheus.CounterVec
	inFlight        *prometheus.GaugeVec
	abandoned       *prometheus.CounterVec
}

// NewLifecycle creates a lifecycle collector under the given namespace.
func NewLifecycle(namespace string) *Lifecycle {
	if namespace == "" {
		namespace = "handler_runner"
	}

	l := &Lifecycle{registry: prometheus.NewRegistry()}

	l.state = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "state",
			Help:      "Current lifecycle state of the handler instance (0=uninitialized, 1=initialized, 2=in_service, 3=destroying, 4=destroyed, 5=failed)",
		},
		[]string{"handler"},
	)
	l.initDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "init_duration_seconds",
			Help:      "Time taken by handler Init",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"handler", "result"},
	)
	l.destroyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "destroy_duration_seconds",
			Help:      "Time taken to drain and destroy a handler",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"handler", "result"},
	)
	l.initFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "init_failures_total",
			Help:      "Total number of failed or timed out Init calls",
		},
		[]string{"handler"},
	)
	l.inFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "in_flight",
			Help:      "Service calls currently running",
		},
		[]string{"handler"},
	)
	l.abandoned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "abandoned_calls_total",
			Help:      "Service calls still running when the drain grace period elapsed",
		},
		[]string{"handler"},
	)

	l.registry.MustRegister(
		l.state,
		l.initDuration,
		l.destroyDuration,
		l.initFailures,
		l.inFlight,
		l.abandoned,
	)
	return l
}

// Registry returns the registry the collectors are registered on.
func (l *Lifecycle) Registry() *prometheus.Registry {
	if l == nil {
		return prometheus.NewRegistry()
	}
	return l.registry
}

// SetState records the current state of the named handler.
func (l *Lifecycle) SetState(name string, s handler.State) {
	if l == nil {
		return
	}
	l.state.WithLabelValues(name).Set(float64(s))
}

// ObserveInit records one Init outcome.
func (l *Lifecycle) ObserveInit(name string, d time.Duration, err error) {
	if l == nil {
		return
	}
	l.initDuration.WithLabelValues(name, result(err)).Observe(d.Seconds())
	if err != nil {
		l.initFailures.WithLabelValues(name).Inc()
	}
}

// ObserveDestroy records one drain-and-destroy outcome.
func (l *Lifecycle) ObserveDestroy(name string, d time.Duration, err error) {
	if l == nil {
		return
	}
	l.destroyDuration.WithLabelValues(name, result(err)).Observe(d.Seconds())
}

// CallStarted and CallFinished track in-flight Service calls.
func (l *Lifecycle) CallStarted(name string) {
	if l == nil {
		return
	}
	l.inFlight.WithLabelValues(name).Inc()
}

func (l *Lifecycle) CallFinished(name string) {
	if l == nil {
		return
	}
	l.inFlight.WithLabelValues(name).Dec()
}

// AddAbandoned counts Service calls abandoned after a drain timeout.
func (l *Lifecycle) AddAbandoned(name string, n int64) {
	if l == nil || n <= 0 {
		return
	}
	l.abandoned.WithLabelValues(name).Add(float64(n))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
