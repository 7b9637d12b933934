package config

import (
	"github.com/Veraticus/autobooks/internal/sheets"
	"github.com/spf13/viper"
)

// LoadSheetsConfig reads the sheets section, falling back to GOOGLE_SHEETS_*
// environment variables for anything unset. It returns nil when no
// spreadsheet is configured, which disables the sink.
func LoadSheetsConfig(v *viper.Viper) (*sheets.Config, error) {
	config := sheets.DefaultConfig()

	config.ServiceAccountPath = ExpandPath(v.GetString("sheets.service_account_path"))
	config.ClientID = v.GetString("sheets.client_id")
	config.ClientSecret = v.GetString("sheets.client_secret")
	config.RefreshToken = v.GetString("sheets.refresh_token")
	config.SpreadsheetID = v.GetString("sheets.spreadsheet_id")
	if r := v.GetString("sheets.range"); r != "" {
		config.Range = r
	}
	if v.IsSet("sheets.retry_attempts") {
		config.RetryAttempts = v.GetInt("sheets.retry_attempts")
	}
	if v.IsSet("sheets.retry_delay") {
		config.RetryDelay = v.GetDuration("sheets.retry_delay")
	}

	config.LoadFromEnv()
	config.ServiceAccountPath = ExpandPath(config.ServiceAccountPath)

	if !config.Enabled() {
		return nil, nil
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
