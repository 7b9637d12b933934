package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Veraticus/autobooks/internal/common"
	"github.com/Veraticus/autobooks/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Appender appends rows to a spreadsheet range.
type Appender interface {
	AppendRows(ctx context.Context, spreadsheetID, rangeA1 string, rows [][]any) error
}

// Header is the column layout written by Row.
var Header = []any{
	"Date", "Document", "Transaction", "Vendor", "Status", "Rule",
	"Debit Account", "Debit", "Credit Account", "Credit", "TDS", "Confidence",
}

// Writer appends every posted transaction as one sheet row.
type Writer struct {
	appender Appender
	logger   *slog.Logger
	config   Config
}

// NewWriter authenticates against the Sheets API and returns a ledger sink.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	srv, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return NewWriterWithAppender(&serviceAppender{service: srv}, config, logger), nil
}

// NewWriterWithAppender builds a Writer over an existing Appender.
func NewWriterWithAppender(appender Appender, config Config, logger *slog.Logger) *Writer {
	if config.Range == "" {
		config.Range = DefaultRange
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		appender: appender,
		config:   config,
		logger:   logger,
	}
}

// Append writes one transaction row, retrying transient API failures.
func (w *Writer) Append(ctx context.Context, tx model.Transaction) error {
	rows := [][]any{Row(tx)}

	retryOpts := common.RetryOptions{
		MaxAttempts:  w.config.RetryAttempts,
		InitialDelay: w.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	err := common.WithRetry(ctx, func() error {
		return classify(w.appender.AppendRows(ctx, w.config.SpreadsheetID, w.config.Range, rows))
	}, retryOpts)
	if err != nil {
		return fmt.Errorf("failed to append transaction %s to sheet: %w", tx.ID, err)
	}

	w.logger.Debug("appended ledger row",
		"spreadsheet_id", w.config.SpreadsheetID,
		"transaction_id", tx.ID,
		"document_id", tx.DocumentID)
	return nil
}

// Row renders a transaction in Header order.
func Row(tx model.Transaction) []any {
	return []any{
		tx.Date.Format("2006-01-02"),
		tx.DocumentID,
		tx.ID,
		tx.Vendor,
		string(tx.Status),
		tx.RuleApplied,
		tx.DebitAccount,
		tx.DebitAmount.StringFixed(2),
		tx.CreditAccount,
		tx.CreditAmount.StringFixed(2),
		tx.TDSAmount.StringFixed(2),
		tx.Confidence.String(),
	}
}

// classify marks client errors other than rate limiting as permanent.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", common.ErrRateLimit, err)
		case apiErr.Code >= 400 && apiErr.Code < 500:
			return &common.RetryableError{Err: err, Retryable: false}
		}
	}
	return err
}

type serviceAppender struct {
	service *sheets.Service
}

func (a *serviceAppender) AppendRows(ctx context.Context, spreadsheetID, rangeA1 string, rows [][]any) error {
	_, err := a.service.Spreadsheets.Values.Append(spreadsheetID, rangeA1, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

// createSheetsService creates a Google Sheets API service.
func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}

		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		client := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{sheets.SpreadsheetsScope},
		}

		token := &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		}

		tokenSource = client.TokenSource(ctx, token)
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	return srv, nil
}
