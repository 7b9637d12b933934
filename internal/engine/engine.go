// Package engine decides how each extracted document is posted: automatically
// from a learned rule, from a similar historical pattern, or by escalating to
// a human whose correction becomes a new rule.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/autobooks/internal/common"
	"github.com/Veraticus/autobooks/internal/ledger"
	"github.com/Veraticus/autobooks/internal/model"
	"github.com/Veraticus/autobooks/internal/scoring"
	"github.com/Veraticus/autobooks/internal/similarity"
	"github.com/Veraticus/autobooks/internal/tds"
	"github.com/google/uuid"
)

// Resolution errors.
var (
	ErrPendingNotFound  = fmt.Errorf("pending document %w", common.ErrNotFound)
	ErrAlreadyResolved  = common.ErrAlreadyResolved
	ErrAlreadyProcessed = common.ErrAlreadyProcessed
)

// Deps are the collaborators of an Engine. Rules, Scorer and Pending are
// required; the rest are optional.
type Deps struct {
	Rules     RuleStore
	Scorer    *scoring.Scorer
	Pending   PendingStore
	Gateway   similarity.Gateway
	Ledger    LedgerWriter
	Escalator Escalator
	Builder   *ledger.Builder
	Metrics   *Metrics
	Logger    *slog.Logger
}

// Engine runs the per-document decision state machine.
type Engine struct {
	rules     RuleStore
	scorer    *scoring.Scorer
	pending   PendingStore
	gateway   similarity.Gateway
	ledger    LedgerWriter
	escalator Escalator
	builder   *ledger.Builder
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
	resolving map[string]struct{}
	config    Config
	mu        sync.Mutex
}

// New creates an engine. It fails when the configuration is invalid or when a
// vendor without a rule could reach the auto-post threshold.
func New(deps Deps, config Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if deps.Rules == nil || deps.Scorer == nil || deps.Pending == nil {
		return nil, fmt.Errorf("%w: engine needs a rule store, scorer and pending store", common.ErrMissingConfig)
	}
	if ceiling := deps.Scorer.Config().Weights.NoRuleCeiling(); ceiling >= config.high() {
		return nil, fmt.Errorf("%w: score without a rule (%s) can reach the auto-post threshold (%s)",
			common.ErrInvalidConfig, ceiling, config.high())
	}

	e := &Engine{
		rules:     deps.Rules,
		scorer:    deps.Scorer,
		pending:   deps.Pending,
		gateway:   deps.Gateway,
		ledger:    deps.Ledger,
		escalator: deps.Escalator,
		builder:   deps.Builder,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       time.Now,
		resolving: make(map[string]struct{}),
		config:    config,
	}
	if e.builder == nil {
		e.builder = ledger.NewBuilder(tds.Default(), ledger.WithTDSAccount(config.TDSAccount))
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.gateway != nil {
		e.gateway = similarity.WithTimeout(e.gateway, config.GatewayTimeout)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Process runs one document through scoring, retrieval and escalation.
//
// A non-positive amount, or one with fractional cents, is rejected with
// common.ErrInvalidAmount and nothing is posted or learned. A missing vendor or amount escalates with confidence 0.
// An error wrapping ErrLedgerWrite is returned together with a posted result
// when a ledger sink fails. Each document id is decided once: a document that
// was already posted or escalated fails with ErrAlreadyProcessed.
func (e *Engine) Process(ctx context.Context, fields model.ExtractedFields) (Result, error) {
	if fields.DocumentID == "" {
		fields.DocumentID = uuid.NewString()
	}
	res := Result{DocumentID: fields.DocumentID}
	res.enter(StateExtracted)

	if err := ctx.Err(); err != nil {
		return res, err
	}

	if fields.Amount != nil && !model.PostableAmount(*fields.Amount) {
		e.metrics.Decisions.WithLabelValues(outcomeRejected).Inc()
		e.logger.Warn("Rejected document with invalid amount",
			"document_id", fields.DocumentID,
			"amount", fields.Amount.String())
		return res, fmt.Errorf("%w: document %s has amount %s", common.ErrInvalidAmount, fields.DocumentID, fields.Amount)
	}

	if err := e.pending.ClaimDocument(ctx, fields.DocumentID); err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			e.metrics.Decisions.WithLabelValues(outcomeDuplicate).Inc()
			e.logger.Warn("Skipped document that was already processed",
				"document_id", fields.DocumentID)
			return res, err
		}
		return res, fmt.Errorf("failed to claim document %s: %w", fields.DocumentID, err)
	}

	res, err := e.decide(ctx, res, fields)
	if err != nil && res.Transaction == nil && res.Pending == nil {
		// Nothing was recorded, so the document may be submitted again.
		if releaseErr := e.pending.ReleaseDocument(context.WithoutCancel(ctx), fields.DocumentID); releaseErr != nil {
			e.logger.Error("Failed to release document claim",
				"document_id", fields.DocumentID,
				"error", releaseErr)
		}
	}
	return res, err
}

func (e *Engine) decide(ctx context.Context, res Result, fields model.ExtractedFields) (Result, error) {
	if !fields.HasVendor() || !fields.HasAmount() {
		res.Candidate = model.ScoredCandidate{Provenance: model.ProvenanceExtractionOnly}
		e.logger.Info("Document is missing required fields",
			"document_id", fields.DocumentID,
			"has_vendor", fields.HasVendor(),
			"has_amount", fields.HasAmount())
		return e.escalate(ctx, res, fields, model.ReasonMissingData)
	}

	rule, hasRule := e.rules.Lookup(fields.Vendor)
	res.Candidate = e.scorer.Score(fields, rule)
	res.enter(StateScored)
	e.metrics.Confidence.Observe(res.Candidate.Confidence.Float())

	e.logger.Debug("Scored document",
		"document_id", fields.DocumentID,
		"vendor", fields.Vendor,
		"confidence", res.Candidate.Confidence.String(),
		"rule", hasRule)

	if hasRule && res.Candidate.Confidence >= e.config.high() {
		return e.autoPost(ctx, res, fields, rule)
	}

	if res.Candidate.Confidence < e.config.medium() {
		return e.escalate(ctx, res, fields, model.ReasonLowConfidence)
	}

	res.enter(StateRetrieving)
	if match, ok := e.findMatch(ctx, fields); ok {
		return e.postMatch(ctx, res, fields, match)
	}
	return e.escalate(ctx, res, fields, model.ReasonNoPatternMatch)
}

func (e *Engine) autoPost(ctx context.Context, res Result, fields model.ExtractedFields, rule *model.Rule) (Result, error) {
	tx, err := e.builder.Build(e.buildInput(fields, res.Candidate.Classification, model.StatusAutoPosted, res.Candidate.Confidence, rule.VendorKey))
	if err != nil {
		return res, fmt.Errorf("failed to build transaction for %s: %w", fields.DocumentID, err)
	}

	if err := e.rules.RecordApplication(ctx, fields.Vendor); err != nil {
		e.logger.Warn("Failed to record rule application",
			"vendor", rule.VendorKey,
			"error", err)
	}

	res.Rule = rule
	res.Transaction = &tx
	res.enter(StateAutoPosted)
	e.metrics.Decisions.WithLabelValues(outcomeAutoPosted).Inc()

	e.logger.Info("Auto-posted document",
		"document_id", fields.DocumentID,
		"vendor", fields.Vendor,
		"confidence", res.Candidate.Confidence.String(),
		"debit", tx.DebitAmount.StringFixed(2),
		"tds", tx.TDSAmount.StringFixed(2))

	return res, e.appendLedger(ctx, tx)
}

// findMatch queries the gateway. Any gateway failure is treated as no match.
func (e *Engine) findMatch(ctx context.Context, fields model.ExtractedFields) (similarity.Match, bool) {
	if e.gateway == nil {
		return similarity.Match{}, false
	}
	matches, err := e.gateway.Query(ctx, fields.Vendor, fields.RawText, e.config.SimilarityResults)
	if err != nil {
		e.metrics.GatewayFailures.Inc()
		e.logger.Warn("Similarity search unavailable",
			"document_id", fields.DocumentID,
			"error", err)
		return similarity.Match{}, false
	}
	return similarity.Best(matches, e.config.AcceptanceDistance)
}

func (e *Engine) postMatch(ctx context.Context, res Result, fields model.ExtractedFields, match similarity.Match) (Result, error) {
	res.Candidate.Classification = match.Classification
	res.Candidate.Provenance = model.ProvenanceSimilarityMatch

	tx, err := e.builder.Build(e.buildInput(fields, match.Classification, model.StatusPatternMatched,
		res.Candidate.Confidence, model.NormalizeVendor(match.Vendor)))
	if err != nil {
		return res, fmt.Errorf("failed to build transaction for %s: %w", fields.DocumentID, err)
	}

	res.Match = &match
	res.Transaction = &tx
	res.enter(StateMatched)
	e.metrics.Decisions.WithLabelValues(outcomePatternMatched).Inc()

	e.logger.Info("Posted document from similar pattern",
		"document_id", fields.DocumentID,
		"vendor", fields.Vendor,
		"matched_vendor", match.Vendor,
		"distance", match.Distance)

	return res, e.appendLedger(ctx, tx)
}

func (e *Engine) escalate(ctx context.Context, res Result, fields model.ExtractedFields, reason model.EscalationReason) (Result, error) {
	doc := model.PendingDocument{
		CreatedAt:  e.now().UTC(),
		Fields:     fields,
		Candidate:  res.Candidate,
		DocumentID: fields.DocumentID,
		Reason:     reason,
	}
	if err := e.pending.SavePending(ctx, doc); err != nil {
		return res, fmt.Errorf("failed to save escalation for %s: %w", fields.DocumentID, err)
	}

	res.Pending = &doc
	res.enter(StateEscalated)
	e.metrics.Decisions.WithLabelValues(outcomeEscalated).Inc()
	e.metrics.Pending.Inc()

	e.logger.Info("Escalated document for review",
		"document_id", fields.DocumentID,
		"vendor", fields.Vendor,
		"reason", reason,
		"confidence", res.Candidate.Confidence.String())

	if e.escalator != nil {
		e.escalator.Escalate(ctx, doc)
	}
	return res, nil
}

// Resolve applies the single correction allowed for an escalated document.
// The corrected transaction is built first, then the rule is learned, then
// the document is marked resolved. A learn failure wraps
// common.ErrPersistenceFailure and leaves the document pending.
func (e *Engine) Resolve(ctx context.Context, documentID string, correction model.Correction) (Result, error) {
	res := Result{DocumentID: documentID}

	if correction.DebitAccount == "" || correction.CreditAccount == "" {
		return res, fmt.Errorf("%w: correction needs debit and credit accounts", common.ErrDataAbsence)
	}

	release, err := e.claim(documentID)
	if err != nil {
		return res, err
	}
	defer release()

	doc, err := e.pending.GetPending(ctx, documentID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		return res, fmt.Errorf("%w: %s", ErrPendingNotFound, documentID)
	case err != nil:
		return res, fmt.Errorf("failed to load pending document %s: %w", documentID, err)
	}

	res.Pending = doc
	res.Candidate = doc.Candidate
	res.Trace = []State{StateEscalated}

	fields := doc.Fields
	if fields.Amount == nil {
		fields.Amount = correction.Amount
	}
	if !fields.HasVendor() {
		fields.Vendor = correction.Vendor
	}
	if !fields.HasVendor() {
		return res, fmt.Errorf("%w: vendor is required to learn a rule", common.ErrDataAbsence)
	}

	classification := correction.Classification()
	if classification.Category == "" {
		classification.Category = fallbackCategory(fields)
	}

	tx, err := e.builder.Build(e.buildInput(fields, classification, model.StatusUserConfirmed, model.MaxConfidence, fields.VendorKey()))
	if err != nil {
		return res, fmt.Errorf("failed to build corrected transaction for %s: %w", documentID, err)
	}

	keywords := scoring.ExtractKeywords(fields.RawText, classification.Category, e.config.KeywordLimit)
	rule, err := e.rules.Learn(ctx, fields.Vendor, classification, keywords)
	if err != nil {
		e.metrics.LearnFailures.Inc()
		e.logger.Error("Failed to learn rule from correction",
			"document_id", documentID,
			"vendor", fields.Vendor,
			"error", err)
		if !errors.Is(err, common.ErrPersistenceFailure) {
			err = fmt.Errorf("%w: %w", common.ErrPersistenceFailure, err)
		}
		return res, fmt.Errorf("failed to learn rule for %q: %w", fields.Vendor, err)
	}

	if err := e.pending.MarkResolved(ctx, documentID, tx.ID); err != nil {
		return res, fmt.Errorf("failed to resolve %s: %w", documentID, err)
	}

	res.Rule = rule
	res.Transaction = &tx
	res.Candidate = model.ScoredCandidate{
		Classification: classification,
		Provenance:     model.ProvenanceRuleMatch,
		Confidence:     model.MaxConfidence,
	}
	res.enter(StateUserConfirmed)
	e.metrics.Decisions.WithLabelValues(outcomeUserConfirmed).Inc()
	e.metrics.Pending.Dec()

	e.logger.Info("Resolved document from correction",
		"document_id", documentID,
		"vendor", rule.VendorKey,
		"debit_account", classification.DebitAccount,
		"credit_account", classification.CreditAccount,
		"tds_applicable", classification.TDSApplicable)

	e.indexPattern(ctx, fields, rule)

	return res, e.appendLedger(ctx, tx)
}

// claim admits one correction per document at a time. A concurrent second
// correction is rejected as already resolved.
func (e *Engine) claim(documentID string) (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.resolving[documentID]; busy {
		return nil, fmt.Errorf("%w: %s is being corrected", ErrAlreadyResolved, documentID)
	}
	e.resolving[documentID] = struct{}{}
	return func() {
		e.mu.Lock()
		delete(e.resolving, documentID)
		e.mu.Unlock()
	}, nil
}

func (e *Engine) indexPattern(ctx context.Context, fields model.ExtractedFields, rule *model.Rule) {
	idx, ok := e.gateway.(similarity.Indexer)
	if !ok {
		return
	}
	err := idx.Index(ctx, similarity.Pattern{
		Vendor:         rule.Vendor,
		Text:           fields.RawText,
		Classification: rule.Classification,
		Keywords:       rule.Keywords,
		LearnedAt:      rule.LearnedAt,
	})
	if err != nil {
		e.logger.Warn("Failed to index pattern",
			"vendor", rule.VendorKey,
			"error", err)
	}
}

func (e *Engine) appendLedger(ctx context.Context, tx model.Transaction) error {
	if e.ledger == nil {
		return nil
	}
	if err := e.ledger.Append(ctx, tx); err != nil {
		e.logger.Error("Failed to write ledger entry",
			"transaction_id", tx.ID,
			"document_id", tx.DocumentID,
			"error", err)
		if !errors.Is(err, ErrLedgerWrite) {
			err = fmt.Errorf("%w: %w", ErrLedgerWrite, err)
		}
		return err
	}
	return nil
}

// PendingDocuments lists escalations awaiting correction.
func (e *Engine) PendingDocuments(ctx context.Context) ([]model.PendingDocument, error) {
	docs, err := e.pending.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending documents: %w", err)
	}
	return docs, nil
}

// PendingDocument returns one open escalation or ErrPendingNotFound.
func (e *Engine) PendingDocument(ctx context.Context, documentID string) (*model.PendingDocument, error) {
	doc, err := e.pending.GetPending(ctx, documentID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		return nil, fmt.Errorf("%w: %s", ErrPendingNotFound, documentID)
	case err != nil:
		return nil, fmt.Errorf("failed to load pending document %s: %w", documentID, err)
	}
	return doc, nil
}

// SyncPendingGauge sets the pending gauge from the store, for use at startup.
func (e *Engine) SyncPendingGauge(ctx context.Context) error {
	docs, err := e.PendingDocuments(ctx)
	if err != nil {
		return err
	}
	e.metrics.Pending.Set(float64(len(docs)))
	return nil
}

func (e *Engine) buildInput(fields model.ExtractedFields, c model.Classification, status model.TransactionStatus, confidence model.Confidence, ruleApplied string) ledger.BuildInput {
	in := ledger.BuildInput{
		Amount:         fields.Amount,
		DocumentID:     fields.DocumentID,
		Vendor:         fields.Vendor,
		Category:       fallbackCategory(fields),
		RuleApplied:    ruleApplied,
		Status:         status,
		Classification: c,
		Confidence:     confidence,
	}
	if fields.Date != nil {
		in.Date = *fields.Date
	}
	return in
}

// fallbackCategory picks the withholding category when the classification
// names none: the extracted tax category, else one guessed from the text.
func fallbackCategory(fields model.ExtractedFields) string {
	if fields.TaxCategory != "" {
		return fields.TaxCategory
	}
	return scoring.GuessCategory(fields.RawText)
}
