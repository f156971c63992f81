package modelset

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the set's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	loads         *prometheus.CounterVec // result: ok, failed
	loadDuration  prometheus.Histogram
	saves         *prometheus.CounterVec // result: written, skipped, failed
	closureBuilds prometheus.Counter
	notifications prometheus.Counter
	models        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rdfmodels",
			Subsystem: "modelset",
			Name:      "loads_total",
			Help:      "Model loads by result",
		}, []string{"result"}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rdfmodels",
			Subsystem: "modelset",
			Name:      "load_duration_seconds",
			Help:      "Model load duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rdfmodels",
			Subsystem: "modelset",
			Name:      "saves_total",
			Help:      "Model saves by result",
		}, []string{"result"}),
		closureBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rdfmodels",
			Subsystem: "modelset",
			Name:      "closure_builds_total",
			Help:      "Import closures computed",
		}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rdfmodels",
			Subsystem: "modelset",
			Name:      "notifications_total",
			Help:      "Change notifications dispatched",
		}),
		models: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rdfmodels",
			Subsystem: "modelset",
			Name:      "models",
			Help:      "Models in the set",
		}),
	}
	for _, c := range []prometheus.Collector{m.loads, m.loadDuration, m.saves, m.closureBuilds, m.notifications, m.models} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) recordLoad(err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.loads.WithLabelValues(result).Inc()
	m.loadDuration.Observe(d.Seconds())
}

func (m *Metrics) recordSave(written bool, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.saves.WithLabelValues("failed").Inc()
	case written:
		m.saves.WithLabelValues("written").Inc()
	default:
		m.saves.WithLabelValues("skipped").Inc()
	}
}

func (m *Metrics) recordClosure() {
	if m == nil {
		return
	}
	m.closureBuilds.Inc()
}

func (m *Metrics) recordNotifications(n int) {
	if m == nil {
		return
	}
	m.notifications.Add(float64(n))
}

func (m *Metrics) setModels(n int) {
	if m == nil {
		return
	}
	m.models.Set(float64(n))
}
