// Package scoring computes bounded trust scores for candidate classifications.
package scoring

import (
	"fmt"
	"strings"

	"github.com/Veraticus/autobooks/internal/common"
	"github.com/Veraticus/autobooks/internal/model"
	"github.com/Veraticus/autobooks/internal/tds"
	"github.com/shopspring/decimal"
)

// Weights are the per-signal contributions in basis points.
type Weights struct {
	VendorRule     model.Confidence
	KeywordOverlap model.Confidence
	AmountRange    model.Confidence
	TaxConsistency model.Confidence
	CategoryWord   model.Confidence // only applies when no rule exists
}

// DefaultWeights sum to exactly 1.0 for a fully agreeing rule match.
func DefaultWeights() Weights {
	return Weights{
		VendorRule:     3500,
		KeywordOverlap: 3000,
		AmountRange:    2000,
		TaxConsistency: 1500,
		CategoryWord:   1500,
	}
}

// NoRuleCeiling is the highest score reachable for a vendor without a rule.
func (w Weights) NoRuleCeiling() model.Confidence {
	return w.AmountRange + w.CategoryWord
}

// Config holds scorer settings.
type Config struct {
	AmountMin decimal.Decimal
	AmountMax decimal.Decimal
	Weights   Weights
}

// DefaultConfig returns the default scorer configuration.
func DefaultConfig() Config {
	return Config{
		AmountMin: decimal.NewFromInt(100),
		AmountMax: decimal.NewFromInt(1_000_000),
		Weights:   DefaultWeights(),
	}
}

// Validate checks the configured range and weights.
func (c Config) Validate() error {
	if !c.AmountMin.IsPositive() || c.AmountMax.LessThan(c.AmountMin) {
		return fmt.Errorf("%w: amount range [%s, %s] must be positive and ordered",
			common.ErrInvalidConfig, c.AmountMin, c.AmountMax)
	}
	w := c.Weights
	for _, v := range []model.Confidence{w.VendorRule, w.KeywordOverlap, w.AmountRange, w.TaxConsistency, w.CategoryWord} {
		if v < 0 || v > model.MaxConfidence {
			return fmt.Errorf("%w: signal weight %d out of range", common.ErrInvalidConfig, v)
		}
	}
	return nil
}

// Scorer is a pure function of extracted fields and an optional rule.
type Scorer struct {
	calc   *tds.Calculator
	config Config
}

// NewScorer creates a scorer. calc decides which extracted tax categories imply withholding.
func NewScorer(config Config, calc *tds.Calculator) (*Scorer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if calc == nil {
		calc = tds.Default()
	}
	return &Scorer{config: config, calc: calc}, nil
}

// Config returns the scorer configuration.
func (s *Scorer) Config() Config {
	return s.config
}

// Score computes a candidate for fields. With a rule the candidate carries the
// rule's classification; without one it carries an empty classification and a
// score that cannot exceed Weights.NoRuleCeiling. A missing vendor always scores 0.
func (s *Scorer) Score(fields model.ExtractedFields, rule *model.Rule) model.ScoredCandidate {
	candidate := model.ScoredCandidate{
		Provenance: model.ProvenanceExtractionOnly,
		Signals:    make(map[model.Signal]model.Confidence),
	}
	if !fields.HasVendor() {
		return candidate
	}

	w := s.config.Weights
	add := func(sig model.Signal, v model.Confidence) {
		if v > 0 {
			candidate.Signals[sig] = v
			candidate.Confidence += v
		}
	}

	if rule != nil {
		candidate.Classification = rule.Classification
		candidate.Provenance = model.ProvenanceRuleMatch
		add(model.SignalVendorRule, w.VendorRule)

		if keywordOverlap(fields, rule.Keywords) {
			add(model.SignalKeywordOverlap, w.KeywordOverlap)
		}
		if s.amountPlausible(fields) {
			add(model.SignalAmountRange, w.AmountRange)
		}
		if s.extractedWithholding(fields) == rule.TDSApplicable {
			add(model.SignalTaxConsistency, w.TaxConsistency)
		}
	} else {
		if s.amountPlausible(fields) {
			add(model.SignalAmountRange, w.AmountRange)
		}
		if GuessCategory(fields.RawText) != "" {
			add(model.SignalCategoryWord, w.CategoryWord)
		}
		if candidate.Confidence > w.NoRuleCeiling() {
			candidate.Confidence = w.NoRuleCeiling()
		}
	}

	candidate.Confidence = candidate.Confidence.Clamp()
	return candidate
}

func keywordOverlap(fields model.ExtractedFields, keywords []string) bool {
	text := strings.ToLower(fields.Vendor + " " + fields.RawText)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func (s *Scorer) amountPlausible(fields model.ExtractedFields) bool {
	if fields.Amount == nil {
		return false
	}
	a := *fields.Amount
	return a.IsPositive() && a.GreaterThanOrEqual(s.config.AmountMin) && a.LessThanOrEqual(s.config.AmountMax)
}

// extractedWithholding reports whether the document itself indicates TDS:
// an explicit positive percentage, or a tax category that carries a rate.
func (s *Scorer) extractedWithholding(fields model.ExtractedFields) bool {
	if fields.TaxPercent != nil && fields.TaxPercent.IsPositive() {
		return true
	}
	return fields.TaxCategory != "" && s.calc.Withholds(fields.TaxCategory)
}
