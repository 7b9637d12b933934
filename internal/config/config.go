// Package config turns viper settings into the typed configuration of each
// component.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/autobooks/internal/common"
	"github.com/Veraticus/autobooks/internal/engine"
	"github.com/Veraticus/autobooks/internal/scoring"
	"github.com/Veraticus/autobooks/internal/similarity"
	"github.com/Veraticus/autobooks/internal/tds"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Default locations, expanded with ExpandPath.
const (
	DefaultDataDir      = "~/.local/share/books"
	DefaultDatabasePath = DefaultDataDir + "/books.db"
	DefaultRulesPath    = DefaultDataDir + "/rules.json"
	DefaultPatternsPath = DefaultDataDir + "/patterns"
	DefaultModelsPath   = DefaultDataDir + "/models"
)

// Paths locates the on-disk state.
type Paths struct {
	Database string
	Rules    string
	Patterns string
}

// Config is the fully resolved application configuration.
type Config struct {
	TDSRates map[string]decimal.Decimal
	Paths    Paths
	Embedder similarity.EmbedderConfig
	Scoring  scoring.Config
	Engine   engine.Config
}

// SetDefaults registers the default value of every key Load reads.
func SetDefaults(v *viper.Viper) {
	ec := engine.DefaultConfig()
	sc := scoring.DefaultConfig()

	v.SetDefault("engine.high_threshold", ec.HighThreshold)
	v.SetDefault("engine.medium_threshold", ec.MediumThreshold)
	v.SetDefault("engine.acceptance_distance", ec.AcceptanceDistance)
	v.SetDefault("engine.gateway_timeout", ec.GatewayTimeout)
	v.SetDefault("engine.similarity_results", ec.SimilarityResults)
	v.SetDefault("engine.workers", ec.Workers)
	v.SetDefault("engine.keyword_limit", ec.KeywordLimit)
	v.SetDefault("engine.tds_account", ec.TDSAccount)

	v.SetDefault("scoring.amount_min", sc.AmountMin.String())
	v.SetDefault("scoring.amount_max", sc.AmountMax.String())

	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("rules.path", DefaultRulesPath)
	v.SetDefault("similarity.path", DefaultPatternsPath)
	v.SetDefault("similarity.embedder", similarity.EmbedderFastEmbed)
	v.SetDefault("similarity.model", similarity.DefaultFastEmbedModel)
	v.SetDefault("similarity.cache_dir", DefaultModelsPath)
	v.SetDefault("similarity.dimensions", similarity.DefaultHashDimensions)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads every section and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	rates, err := LoadTDSRates(v)
	if err != nil {
		return nil, err
	}
	sc, err := LoadScoring(v)
	if err != nil {
		return nil, err
	}
	ec, err := LoadEngine(v)
	if err != nil {
		return nil, err
	}

	return &Config{
		Engine:   ec,
		Scoring:  sc,
		TDSRates: rates,
		Embedder: LoadEmbedder(v),
		Paths: Paths{
			Database: ExpandPath(v.GetString("database.path")),
			Rules:    ExpandPath(v.GetString("rules.path")),
			Patterns: ExpandPath(v.GetString("similarity.path")),
		},
	}, nil
}

// LoadEngine reads the engine section.
func LoadEngine(v *viper.Viper) (engine.Config, error) {
	c := engine.DefaultConfig()
	if v.IsSet("engine.high_threshold") {
		c.HighThreshold = v.GetFloat64("engine.high_threshold")
	}
	if v.IsSet("engine.medium_threshold") {
		c.MediumThreshold = v.GetFloat64("engine.medium_threshold")
	}
	if v.IsSet("engine.acceptance_distance") {
		c.AcceptanceDistance = v.GetFloat64("engine.acceptance_distance")
	}
	if v.IsSet("engine.gateway_timeout") {
		c.GatewayTimeout = v.GetDuration("engine.gateway_timeout")
	}
	if v.IsSet("engine.similarity_results") {
		c.SimilarityResults = v.GetInt("engine.similarity_results")
	}
	if v.IsSet("engine.workers") {
		c.Workers = v.GetInt("engine.workers")
	}
	if v.IsSet("engine.keyword_limit") {
		c.KeywordLimit = v.GetInt("engine.keyword_limit")
	}
	if s := v.GetString("engine.tds_account"); s != "" {
		c.TDSAccount = s
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// LoadScoring reads the plausible amount range.
func LoadScoring(v *viper.Viper) (scoring.Config, error) {
	c := scoring.DefaultConfig()
	var err error
	if s := v.GetString("scoring.amount_min"); s != "" {
		if c.AmountMin, err = decimal.NewFromString(s); err != nil {
			return c, fmt.Errorf("%w: scoring.amount_min %q: %w", common.ErrInvalidConfig, s, err)
		}
	}
	if s := v.GetString("scoring.amount_max"); s != "" {
		if c.AmountMax, err = decimal.NewFromString(s); err != nil {
			return c, fmt.Errorf("%w: scoring.amount_max %q: %w", common.ErrInvalidConfig, s, err)
		}
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// LoadTDSRates returns the default rate table overridden by tds.rates.
func LoadTDSRates(v *viper.Viper) (map[string]decimal.Decimal, error) {
	rates := tds.DefaultRates()
	for category, raw := range v.GetStringMapString("tds.rates") {
		rate, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: tds.rates.%s %q: %w", common.ErrInvalidConfig, category, raw, err)
		}
		rates[strings.ToLower(category)] = rate
	}
	if _, err := tds.NewCalculator(rates); err != nil {
		return nil, err
	}
	return rates, nil
}

// LoadEmbedder reads the similarity embedder selection. The API key falls
// back to OPENAI_API_KEY.
func LoadEmbedder(v *viper.Viper) similarity.EmbedderConfig {
	c := similarity.EmbedderConfig{
		Kind:       v.GetString("similarity.embedder"),
		BaseURL:    v.GetString("similarity.base_url"),
		Model:      v.GetString("similarity.model"),
		APIKey:     v.GetString("similarity.api_key"),
		CacheDir:   ExpandPath(v.GetString("similarity.cache_dir")),
		Dimensions: v.GetInt("similarity.dimensions"),
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return c
}

// ExpandPath expands a leading ~ and $VAR references.
func ExpandPath(path string) string {
	switch {
	case path == "":
		return path
	case path == "~", strings.HasPrefix(path, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}

