// Package api exposes the engine over HTTP: document intake, the correction
// callback for escalations, rule and ledger inspection, and Prometheus metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Veraticus/autobooks/internal/engine"
	"github.com/Veraticus/autobooks/internal/model"
	"github.com/Veraticus/autobooks/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RuleLister lists learned rules.
type RuleLister interface {
	All() []model.Rule
	Lookup(vendor string) (*model.Rule, bool)
}

// LedgerReader reads the posted ledger.
type LedgerReader interface {
	Summary(ctx context.Context) (storage.LedgerSummary, error)
	ListTransactions(ctx context.Context, filter storage.LedgerFilter) ([]model.Transaction, error)
}

// Deps are the collaborators served by the router. Gatherer defaults to the
// Prometheus default gatherer.
type Deps struct {
	Engine   *engine.Engine
	Rules    RuleLister
	Ledger   LedgerReader
	Gatherer prometheus.Gatherer
	Metrics  *HTTPMetrics
	Logger   *slog.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(deps Deps) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		// Documents
		r.Post("/documents", SubmitDocuments(deps.Engine, logger))

		// Escalations
		r.Get("/pending", ListPending(deps.Engine, logger))
		r.Get("/pending/{document_id}", GetPending(deps.Engine, logger))
		r.Post("/pending/{document_id}/correction", SubmitCorrection(deps.Engine, logger))

		// Rules
		r.Get("/rules", ListRules(deps.Rules))
		r.Get("/rules/{vendor}", GetRule(deps.Rules))

		// Ledger
		r.Get("/ledger", ListLedger(deps.Ledger, logger))
		r.Get("/ledger/summary", LedgerSummary(deps.Ledger, logger))
	})

	return r
}
