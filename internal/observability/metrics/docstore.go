package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DocstoreMetrics tracks document store calls per backend.
type DocstoreMetrics struct {
	opsTotal   *prometheus.CounterVec
	opLatency  *prometheus.HistogramVec
	deliveries *prometheus.CounterVec
}

func NewDocstoreMetrics(reg prometheus.Registerer) *DocstoreMetrics {
	m := &DocstoreMetrics{
		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "docstore",
			Name:      "operations_total",
			Help:      "Document store operations by backend, op and outcome",
		}, []string{"backend", "op", "status"}),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "docstore",
			Name:      "operation_latency_seconds",
			Help:      "Latency of document store operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "op"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "docstore",
			Name:      "snapshot_deliveries_total",
			Help:      "Snapshots delivered to subscribers by backend and outcome",
		}, []string{"backend", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.opsTotal, m.opLatency, m.deliveries)
	return m
}

// ObserveOp records one operation. err == nil counts as "ok".
func (m *DocstoreMetrics) ObserveOp(backend, op string, started time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.opsTotal.WithLabelValues(backend, op, status).Inc()
	m.opLatency.WithLabelValues(backend, op).Observe(time.Since(started).Seconds())
}

func (m *DocstoreMetrics) ObserveDelivery(backend, status string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(backend, status).Inc()
}
