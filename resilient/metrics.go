package resilient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records provider call outcomes.
type Metrics struct {
	calls     *prometheus.CounterVec
	cacheHits *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	interval  *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them on reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semtrip",
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Provider calls by outcome.",
		}, []string{"provider", "outcome"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semtrip",
			Subsystem: "provider",
			Name:      "cache_hits_total",
			Help:      "Calls answered from the response cache.",
		}, []string{"provider"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "semtrip",
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Latency of individual provider attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		interval: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "semtrip",
			Subsystem: "provider",
			Name:      "min_interval_seconds",
			Help:      "Current minimum spacing between calls.",
		}, []string{"provider"}),
	}
	if reg != nil {
		reg.MustRegister(m.calls, m.cacheHits, m.latency, m.interval)
	}
	return m
}

func (m *Metrics) outcome(provider, outcome string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) hit(provider string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(provider).Inc()
}

func (m *Metrics) observe(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) setInterval(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.interval.WithLabelValues(provider).Set(d.Seconds())
}
