package pipeline

import (
	"time"

	"github.com/c360studio/semtrip/trip"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records run and stage outcomes.
type Metrics struct {
	runs        *prometheus.CounterVec
	stageTime   *prometheus.HistogramVec
	stageErrors *prometheus.CounterVec
	days        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semtrip",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Finished runs by terminal stage.",
		}, []string{"stage"}),
		stageTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "semtrip",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semtrip",
			Subsystem: "pipeline",
			Name:      "stage_errors_total",
			Help:      "Recorded stage errors.",
		}, []string{"stage"}),
		days: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semtrip",
			Subsystem: "pipeline",
			Name:      "day_plans_total",
			Help:      "Planned days by the path that produced the schedule.",
		}, []string{"method"}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.stageTime, m.stageErrors, m.days)
	}
	return m
}

func (m *Metrics) finished(stage trip.Stage) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(stage.String()).Inc()
}

func (m *Metrics) observe(stage trip.Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.stageTime.WithLabelValues(stage.String()).Observe(d.Seconds())
}

func (m *Metrics) stageError(stage trip.Stage) {
	if m == nil {
		return
	}
	m.stageErrors.WithLabelValues(stage.String()).Inc()
}

func (m *Metrics) day(method string) {
	if m == nil {
		return
	}
	m.days.WithLabelValues(method).Inc()
}
