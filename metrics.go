package tkdb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"strings"
)

// QueryMetrics records statement durations and failures, use QueryMetrics.Observe as a Connection LogListener
type QueryMetrics struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

// NewQueryMetrics creates and registers the metrics with reg (prometheus.DefaultRegisterer if nil)
func NewQueryMetrics(reg prometheus.Registerer, namespace string) *QueryMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &QueryMetrics{
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "statement_duration_seconds",
				Help:      "Duration of executed SQL statements",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"statement"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "statement_failures_total",
				Help:      "The total number of failed SQL statements",
			},
			[]string{"statement"},
		),
	}
}

// Observe records a log entry
func (qm *QueryMetrics) Observe(entry LogEntry) {
	kind := statementKind(entry.SQL)
	qm.duration.WithLabelValues(kind).Observe(entry.Duration.Seconds())
	if entry.Err != nil {
		qm.failures.WithLabelValues(kind).Inc()
	}
}

func statementKind(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "other"
	}
	switch kw := strings.ToLower(fields[0]); kw {
	case "select", "insert", "update", "delete":
		return kw
	}
	return "other"
}
