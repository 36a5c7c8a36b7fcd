// Package metrics exposes prometheus instrumentation for the upload
// pipeline. All methods are safe on a nil receiver so tests can run a
// pipeline without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's prometheus collectors.
type Metrics struct {
	uploads  *prometheus.CounterVec
	rows     prometheus.Counter
	duration prometheus.Histogram
}

// New registers the pipeline collectors on reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equipflow_uploads_total",
			Help: "Uploads processed, labelled by outcome kind.",
		}, []string{"outcome"}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "equipflow_rows_persisted_total",
			Help: "Equipment rows committed to the store.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "equipflow_upload_duration_seconds",
			Help:    "End-to-end upload processing time.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
	reg.MustRegister(m.uploads, m.rows, m.duration)
	return m
}

// ObserveUpload records one completed upload attempt and its duration.
func (m *Metrics) ObserveUpload(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}

// AddRowsPersisted records rows committed by a successful batch insert.
func (m *Metrics) AddRowsPersisted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rows.Add(float64(n))
}
