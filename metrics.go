package authdb

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records per-operation counts and latencies.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg skips registration.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authdb",
			Name:      "operations_total",
			Help:      "Token store operations by operation and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "authdb",
			Name:      "operation_duration_seconds",
			Help:      "Token store operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"op"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.operations, m.duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observe(op string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = KindOf(err).String()
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}
