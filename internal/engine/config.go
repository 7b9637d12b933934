package engine

import (
	"fmt"
	"time"

	"github.com/Veraticus/autobooks/internal/common"
	"github.com/Veraticus/autobooks/internal/ledger"
	"github.com/Veraticus/autobooks/internal/model"
)

// Config holds the decision thresholds and runtime limits.
type Config struct {
	TDSAccount         string
	HighThreshold      float64
	MediumThreshold    float64
	AcceptanceDistance float64
	GatewayTimeout     time.Duration
	SimilarityResults  int
	Workers            int
	KeywordLimit       int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		HighThreshold:      0.75,
		MediumThreshold:    0.50,
		AcceptanceDistance: 0.30,
		GatewayTimeout:     2 * time.Second,
		SimilarityResults:  3,
		Workers:            4,
		TDSAccount:         ledger.DefaultTDSAccount,
		KeywordLimit:       8,
	}
}

// Validate checks that thresholds are ordered and limits are usable.
func (c Config) Validate() error {
	if c.MediumThreshold <= 0 || c.MediumThreshold > c.HighThreshold || c.HighThreshold > 1 {
		return fmt.Errorf("%w: thresholds must satisfy 0 < medium (%.2f) <= high (%.2f) <= 1",
			common.ErrInvalidConfig, c.MediumThreshold, c.HighThreshold)
	}
	if c.AcceptanceDistance <= 0 || c.AcceptanceDistance > 1 {
		return fmt.Errorf("%w: acceptance distance %.2f must be in (0, 1]", common.ErrInvalidConfig, c.AcceptanceDistance)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive", common.ErrInvalidConfig)
	}
	if c.SimilarityResults <= 0 {
		return fmt.Errorf("%w: similarity results must be positive", common.ErrInvalidConfig)
	}
	if c.KeywordLimit <= 0 {
		return fmt.Errorf("%w: keyword limit must be positive", common.ErrInvalidConfig)
	}
	if c.GatewayTimeout < 0 {
		return fmt.Errorf("%w: gateway timeout cannot be negative", common.ErrInvalidConfig)
	}
	return nil
}

func (c Config) high() model.Confidence {
	return model.ConfidenceFromFloat(c.HighThreshold)
}

func (c Config) medium() model.Confidence {
	return model.ConfidenceFromFloat(c.MediumThreshold)
}
