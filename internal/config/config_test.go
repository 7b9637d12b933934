package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/autobooks/internal/common"
	"github.com/Veraticus/autobooks/internal/engine"
	"github.com/Veraticus/autobooks/internal/sheets"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, engine.DefaultConfig(), cfg.Engine)
	assert.True(t, cfg.Scoring.AmountMin.Equal(decimal.NewFromInt(100)))
	assert.True(t, cfg.TDSRates["rent"].Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "fastembed", cfg.Embedder.Kind)
	assert.Equal(t, "BAAI/bge-small-en-v1.5", cfg.Embedder.Model)
	assert.Equal(t, "models", filepath.Base(cfg.Embedder.CacheDir))
	assert.Equal(t, 512, cfg.Embedder.Dimensions)
	assert.Equal(t, "books.db", filepath.Base(cfg.Paths.Database))
	assert.False(t, strings.HasPrefix(cfg.Paths.Rules, "~"))
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(newViper(t, `
engine:
  high_threshold: 0.9
  medium_threshold: 0.6
  gateway_timeout: 500ms
  workers: 8
  tds_account: TDS Receivable
scoring:
  amount_min: 50
  amount_max: 25000.50
tds:
  rates:
    rent: 12
    freight: 2
similarity:
  embedder: remote
  base_url: http://localhost:8080/v1
  model: nomic-embed-text
`))
	require.NoError(t, err)

	assert.InDelta(t, 0.9, cfg.Engine.HighThreshold, 1e-9)
	assert.InDelta(t, 0.6, cfg.Engine.MediumThreshold, 1e-9)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.GatewayTimeout)
	assert.Equal(t, 8, cfg.Engine.Workers)
	assert.Equal(t, "TDS Receivable", cfg.Engine.TDSAccount)
	assert.Equal(t, "25000.5", cfg.Scoring.AmountMax.String())
	assert.True(t, cfg.TDSRates["rent"].Equal(decimal.NewFromInt(12)))
	assert.True(t, cfg.TDSRates["freight"].Equal(decimal.NewFromInt(2)))
	assert.True(t, cfg.TDSRates["salary"].Equal(decimal.NewFromInt(5)))
	assert.Equal(t, "remote", cfg.Embedder.Kind)
	assert.Equal(t, "nomic-embed-text", cfg.Embedder.Model)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"inverted thresholds": "engine:\n  high_threshold: 0.4\n  medium_threshold: 0.6\n",
		"bad amount":          "scoring:\n  amount_min: lots\n",
		"inverted range":      "scoring:\n  amount_min: 500\n  amount_max: 100\n",
		"rate over 100":       "tds:\n  rates:\n    rent: 150\n",
		"rate not a number":   "tds:\n  rates:\n    rent: ten\n",
	}
	for name, yaml := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(newViper(t, yaml))
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("BOOKS_TEST_DIR", "/data")

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, filepath.Join(home, "books", "rules.json"), ExpandPath("~/books/rules.json"))
	assert.Equal(t, "/data/books.db", ExpandPath("$BOOKS_TEST_DIR/books.db"))
	assert.Equal(t, "/abs/path", ExpandPath("/abs/path"))
}

func TestLoadSheetsConfig(t *testing.T) {
	for _, key := range []string{
		"GOOGLE_SHEETS_CLIENT_ID", "GOOGLE_SHEETS_CLIENT_SECRET", "GOOGLE_SHEETS_REFRESH_TOKEN",
		"GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH", "GOOGLE_SHEETS_SPREADSHEET_ID",
	} {
		t.Setenv(key, "")
	}

	t.Run("disabled without spreadsheet", func(t *testing.T) {
		cfg, err := LoadSheetsConfig(newViper(t, ""))
		require.NoError(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("service account from file", func(t *testing.T) {
		cfg, err := LoadSheetsConfig(newViper(t, `
sheets:
  spreadsheet_id: abc123
  service_account_path: /keys/sa.json
  retry_attempts: 5
`))
		require.NoError(t, err)
		require.NotNil(t, cfg)
		assert.Equal(t, "abc123", cfg.SpreadsheetID)
		assert.Equal(t, 5, cfg.RetryAttempts)
		assert.Equal(t, sheets.DefaultRange, cfg.Range)
	})

	t.Run("credentials from environment", func(t *testing.T) {
		t.Setenv("GOOGLE_SHEETS_CLIENT_ID", "id")
		t.Setenv("GOOGLE_SHEETS_CLIENT_SECRET", "secret")
		t.Setenv("GOOGLE_SHEETS_REFRESH_TOKEN", "refresh")
		cfg, err := LoadSheetsConfig(newViper(t, "sheets:\n  spreadsheet_id: abc123\n"))
		require.NoError(t, err)
		assert.Equal(t, "refresh", cfg.RefreshToken)
	})

	t.Run("spreadsheet without credentials", func(t *testing.T) {
		_, err := LoadSheetsConfig(newViper(t, "sheets:\n  spreadsheet_id: abc123\n"))
		assert.Error(t, err)
	})
}
