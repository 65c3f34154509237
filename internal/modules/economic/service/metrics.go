package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ticks            prometheus.Counter
	loopFaults       prometheus.Counter
	feedFailures     prometheus.Counter
	deliveries       *prometheus.CounterVec
	callbackDuration prometheus.Histogram
	subscribers      prometheus.Gauge
	processed        prometheus.Gauge
}

// NewMetrics registers the monitor collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "economic",
			Name:      "ticks_total",
			Help:      "Monitor ticks executed",
		}),
		loopFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "economic",
			Name:      "loop_faults_total",
			Help:      "Ticks aborted by an unexpected error or panic",
		}),
		feedFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "economic",
			Name:      "feed_failures_total",
			Help:      "Ticks skipped because the calendar snapshot was unavailable",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "economic",
			Name:      "deliveries_total",
			Help:      "Observer callbacks by result",
		}, []string{"country", "result"}),
		callbackDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sentinel",
			Subsystem: "economic",
			Name:      "callback_duration_seconds",
			Help:      "Observer callback latency",
			Buckets:   prometheus.DefBuckets,
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentinel",
			Subsystem: "economic",
			Name:      "subscribers",
			Help:      "Registered (country, importance, id) observers",
		}),
		processed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentinel",
			Subsystem: "economic",
			Name:      "processed_events",
			Help:      "Events currently held in the processed set",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ticks, m.loopFaults, m.feedFailures,
			m.deliveries, m.callbackDuration,
			m.subscribers, m.processed,
		)
	}
	return m
}
