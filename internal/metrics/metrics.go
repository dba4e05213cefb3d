// Package metrics exposes Prometheus counters for record mutations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "decisionrecords"

// Rewrite results.
const (
	ResultInjected = "injected"
	ResultNoop     = "noop"
	ResultError    = "error"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Rewrites  *prometheus.CounterVec
	Relations *prometheus.CounterVec
	Created   prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rewrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewrites_total",
			Help:      "Status block rewrites by outcome",
		}, []string{"result"}),
		Relations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relations_total",
			Help:      "Relations written by kind",
		}, []string{"kind"}),
		Created: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_created_total",
			Help:      "Records created",
		}),
	}
}

// Rewrite counts one status block rewrite.
func (m *Metrics) Rewrite(result string) {
	if m == nil {
		return
	}
	m.Rewrites.WithLabelValues(result).Inc()
}

// Relation counts one relation written between two records.
func (m *Metrics) Relation(kind string) {
	if m == nil {
		return
	}
	m.Relations.WithLabelValues(kind).Inc()
}

// RecordCreated counts one new record.
func (m *Metrics) RecordCreated() {
	if m == nil {
		return
	}
	m.Created.Inc()
}
