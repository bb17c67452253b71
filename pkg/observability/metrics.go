package observability

import (
	"github.com/illmade-knight/go-restbridge/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "restbridge"

// Metrics holds the Prometheus collectors for both connector directions.
type Metrics struct {
	Polls          *prometheus.CounterVec
	RecordsEmitted *prometheus.CounterVec
	RecordsDeduped prometheus.Counter
	PollDuration   prometheus.Histogram
	SinkRecords    *prometheus.CounterVec
	DeadLettered   prometheus.Counter
	PutDuration    prometheus.Histogram
	ConnectorUp    prometheus.Gauge
}

// Outcome labels.
const (
	OutcomeSuccess       = "success"
	OutcomeTransient     = "transient"
	OutcomePermanent     = "permanent"
	OutcomeConversion    = "conversion"
	OutcomeConfiguration = "configuration"
)

// NewMetrics creates the collectors and registers them with reg, or with the
// default registry when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := newMetrics()
	reg.MustRegister(
		m.Polls,
		m.RecordsEmitted,
		m.RecordsDeduped,
		m.PollDuration,
		m.SinkRecords,
		m.DeadLettered,
		m.PutDuration,
		m.ConnectorUp,
	)
	return m
}

// NewMetricsForTesting creates unregistered collectors, so tests can build as
// many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_polls_total",
			Help:      "Source polls by outcome.",
		}, []string{"outcome"}),
		RecordsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_records_emitted_total",
			Help:      "Records published to the broker by topic.",
		}, []string{"topic"}),
		RecordsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_records_deduplicated_total",
			Help:      "Records skipped because the value had not changed since the last poll.",
		}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_poll_duration_seconds",
			Help:      "Duration of one poll, request to routed records.",
			Buckets:   prometheus.DefBuckets,
		}),
		SinkRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_records_total",
			Help:      "Sink records by delivery outcome.",
		}, []string{"outcome"}),
		DeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_dead_lettered_total",
			Help:      "Sink records published to the dead-letter topic.",
		}),
		PutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sink_batch_duration_seconds",
			Help:      "Duration of one Put call.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
		ConnectorUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connector_running",
			Help:      "1 while the connector runner is active.",
		}),
	}
}

// Outcome classifies a task error for the outcome label. Unclassified errors
// count as transient.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case types.IsConfiguration(err):
		return OutcomeConfiguration
	case types.IsPermanent(err):
		return OutcomePermanent
	case types.IsConversion(err):
		return OutcomeConversion
	default:
		return OutcomeTransient
	}
}
