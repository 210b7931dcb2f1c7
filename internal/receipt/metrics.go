package receipt

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the ingestion pipeline. A nil *Metrics records nothing.
type Metrics struct {
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	history   *prometheus.CounterVec
	stored    prometheus.Gauge
}

// NewMetrics creates the pipeline collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		processed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hisab_receipts_processed_total",
				Help: "Receipt processing attempts by outcome.",
			},
			[]string{"outcome"},
		),
		// Agent calls dominate; buckets reach into minutes for slow vision models.
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hisab_operation_duration_seconds",
				Help:    "Duration of coordinator operations in seconds.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
		history: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hisab_history_lookups_total",
				Help: "Remote history lookups by result.",
			},
			[]string{"result"},
		),
		stored: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hisab_receipts_stored",
				Help: "Number of receipts in the published list.",
			},
		),
	}
	reg.MustRegister(m.processed, m.duration, m.history, m.stored)
	return m
}

func (m *Metrics) observeProcess(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues("process").Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeOperation(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeHistory(result string) {
	if m == nil {
		return
	}
	m.history.WithLabelValues(result).Inc()
}

func (m *Metrics) setStored(n int) {
	if m == nil {
		return
	}
	m.stored.Set(float64(n))
}
