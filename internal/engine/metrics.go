package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decision outcomes recorded in books_decisions_total.
const (
	outcomeAutoPosted     = "auto_posted"
	outcomePatternMatched = "pattern_matched"
	outcomeEscalated      = "escalated"
	outcomeUserConfirmed  = "user_confirmed"
	outcomeRejected       = "rejected"
	outcomeDuplicate      = "duplicate"
)

// Metrics holds Prometheus metrics for the decision engine.
//
// Metrics:
//   - books_decisions_total{outcome} - documents by final outcome
//   - books_confidence - histogram of computed scores (0..1)
//   - books_gateway_failures_total - similarity queries that failed or timed out
//   - books_learn_failures_total - corrections whose rule could not be persisted
//   - books_pending_documents - escalations awaiting correction
type Metrics struct {
	Decisions       *prometheus.CounterVec
	Confidence      prometheus.Histogram
	GatewayFailures prometheus.Counter
	LearnFailures   prometheus.Counter
	Pending         prometheus.Gauge
}

// NewMetrics registers the engine metrics with reg. A nil registerer keeps the
// metrics private, which lets several engines coexist in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		Decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "books_decisions_total",
				Help: "Documents processed, by outcome",
			},
			[]string{"outcome"},
		),
		Confidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "books_confidence",
			Help:    "Confidence scores computed for documents",
			Buckets: []float64{0.1, 0.2, 0.35, 0.5, 0.6, 0.75, 0.85, 0.95, 1},
		}),
		GatewayFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "books_gateway_failures_total",
			Help: "Similarity queries that failed or timed out",
		}),
		LearnFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "books_learn_failures_total",
			Help: "Corrections whose rule could not be persisted",
		}),
		Pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "books_pending_documents",
			Help: "Escalated documents awaiting correction",
		}),
	}
}
