package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Veraticus/autobooks/internal/engine"
	"github.com/Veraticus/autobooks/internal/intake"
	"github.com/Veraticus/autobooks/internal/model"
	"github.com/Veraticus/autobooks/internal/storage"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

// DocumentResult is the response for one submitted document.
type DocumentResult struct {
	engine.Result
	Error string `json:"error,omitempty"`
}

// SubmitDocuments runs one extraction object, or an array of them, through
// the engine. A single document answers with its own status code; a batch
// always answers 200 with a per-document result.
func SubmitDocuments(eng *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := intake.ParseJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), "api")
		if err != nil {
			logger.Warn("Failed to decode documents", "error", err)
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if len(items) == 1 {
			item := items[0]
			if item.Err != nil {
				writeError(w, statusFor(item.Err), item.Err.Error())
				return
			}
			res, err := eng.Process(r.Context(), item.Fields)
			if err != nil && !errors.Is(err, engine.ErrLedgerWrite) {
				logger.Warn("Failed to process document", "document_id", res.DocumentID, "error", err)
				writeError(w, statusFor(err), err.Error())
				return
			}
			writeJSON(w, resultStatus(res), newDocumentResult(res, err))
			return
		}

		valid := make([]model.ExtractedFields, 0, len(items))
		out := make([]DocumentResult, len(items))
		slots := make([]int, 0, len(items))
		for i, item := range items {
			if item.Err != nil {
				out[i] = DocumentResult{Result: engine.Result{DocumentID: item.Fields.DocumentID}, Error: item.Err.Error()}
				continue
			}
			valid = append(valid, item.Fields)
			slots = append(slots, i)
		}
		for _, bi := range eng.ProcessBatch(r.Context(), valid) {
			out[slots[bi.Index]] = newDocumentResult(bi.Result, bi.Err)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// ListPending lists open escalations.
func ListPending(eng *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := eng.PendingDocuments(r.Context())
		if err != nil {
			logger.Error("Failed to list pending documents", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list pending documents")
			return
		}
		if docs == nil {
			docs = []model.PendingDocument{}
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

// GetPending returns one open escalation.
func GetPending(eng *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		documentID := chi.URLParam(r, "document_id")
		doc, err := eng.PendingDocument(r.Context(), documentID)
		if err != nil {
			logger.Debug("Pending document lookup failed", "document_id", documentID, "error", err)
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

// SubmitCorrection applies the human correction for an escalated document.
func SubmitCorrection(eng *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		documentID := chi.URLParam(r, "document_id")

		var correction model.Correction
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&correction); err != nil {
			logger.Warn("Failed to decode correction", "document_id", documentID, "error", err)
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := eng.Resolve(r.Context(), documentID, correction)
		if err != nil && !errors.Is(err, engine.ErrLedgerWrite) {
			logger.Warn("Correction rejected", "document_id", documentID, "error", err)
			writeError(w, statusFor(err), err.Error())
			return
		}
		logger.Info("Correction applied", "document_id", documentID, "state", res.State)
		writeJSON(w, http.StatusCreated, newDocumentResult(res, err))
	}
}

// ListRules lists every learned rule.
func ListRules(rules RuleLister) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		all := rules.All()
		if all == nil {
			all = []model.Rule{}
		}
		writeJSON(w, http.StatusOK, all)
	}
}

// GetRule returns the rule for one vendor.
func GetRule(rules RuleLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendor := chi.URLParam(r, "vendor")
		rule, ok := rules.Lookup(vendor)
		if !ok {
			writeError(w, http.StatusNotFound, "no rule for vendor "+vendor)
			return
		}
		writeJSON(w, http.StatusOK, rule)
	}
}

// ListLedger lists posted transactions, newest first. Query parameters:
// status, vendor, limit.
func ListLedger(ledger LedgerReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := storage.LedgerFilter{
			Status: model.TransactionStatus(r.URL.Query().Get("status")),
			Vendor: r.URL.Query().Get("vendor"),
		}
		if filter.Status != "" && !filter.Status.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		if s := r.URL.Query().Get("limit"); s != "" {
			limit, err := strconv.Atoi(s)
			if err != nil || limit < 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			filter.Limit = limit
		}

		txs, err := ledger.ListTransactions(r.Context(), filter)
		if err != nil {
			logger.Error("Failed to list ledger", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list ledger")
			return
		}
		if txs == nil {
			txs = []model.Transaction{}
		}
		writeJSON(w, http.StatusOK, txs)
	}
}

// LedgerSummary returns totals per status.
func LedgerSummary(ledger LedgerReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := ledger.Summary(r.Context())
		if err != nil {
			logger.Error("Failed to summarize ledger", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to summarize ledger")
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func newDocumentResult(res engine.Result, err error) DocumentResult {
	out := DocumentResult{Result: res}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

// resultStatus is 201 for a posted transaction and 202 for an escalation.
func resultStatus(res engine.Result) int {
	if res.State == engine.StateEscalated {
		return http.StatusAccepted
	}
	return http.StatusCreated
}
