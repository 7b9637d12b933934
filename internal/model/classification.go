package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// Classification is a proposed or confirmed ledger mapping for a document.
type Classification struct {
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Category      string `json:"category,omitempty"`
	TDSApplicable bool   `json:"tds_applicable"`
}

// IsZero reports whether no accounts have been chosen.
func (c Classification) IsZero() bool {
	return c.DebitAccount == "" && c.CreditAccount == ""
}

// Provenance records where a candidate's confidence came from.
type Provenance string

// Provenance constants.
const (
	ProvenanceRuleMatch       Provenance = "RULE_MATCH"
	ProvenanceSimilarityMatch Provenance = "SIMILARITY_MATCH"
	ProvenanceExtractionOnly  Provenance = "EXTRACTION_ONLY"
)

// Confidence is a fixed-point trust score in basis points, 0 through MaxConfidence.
// Integer arithmetic keeps threshold comparisons identical on every platform.
type Confidence int

// MaxConfidence is a score of exactly 1.0.
const MaxConfidence Confidence = 10000

// ConfidenceFromFloat converts a ratio in [0, 1] to basis points, clamping out-of-range input.
func ConfidenceFromFloat(f float64) Confidence {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= 1 {
		return MaxConfidence
	}
	return Confidence(math.Round(f * float64(MaxConfidence)))
}

// Clamp bounds c to [0, MaxConfidence].
func (c Confidence) Clamp() Confidence {
	switch {
	case c < 0:
		return 0
	case c > MaxConfidence:
		return MaxConfidence
	default:
		return c
	}
}

// Float returns the score as a ratio.
func (c Confidence) Float() float64 {
	return float64(c) / float64(MaxConfidence)
}

func (c Confidence) String() string {
	return fmt.Sprintf("%.2f%%", c.Float()*100)
}

// MarshalJSON encodes the score as a ratio so persisted records stay readable.
func (c Confidence) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Float())
}

// UnmarshalJSON decodes a ratio.
func (c *Confidence) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid confidence: %w", err)
	}
	*c = ConfidenceFromFloat(f)
	return nil
}

// Signal names a single scoring contribution.
type Signal string

// Scoring signals.
const (
	SignalVendorRule     Signal = "vendor_rule"
	SignalKeywordOverlap Signal = "keyword_overlap"
	SignalAmountRange    Signal = "amount_range"
	SignalTaxConsistency Signal = "tax_consistency"
	SignalCategoryWord   Signal = "category_keyword"
)

// ScoredCandidate pairs a proposed classification with its confidence.
type ScoredCandidate struct {
	Signals        map[Signal]Confidence `json:"signals,omitempty"`
	Classification Classification        `json:"classification"`
	Provenance     Provenance            `json:"provenance"`
	Confidence     Confidence            `json:"confidence"`
}
