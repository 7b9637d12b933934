package intake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/autobooks/internal/common"
	"github.com/Veraticus/autobooks/internal/model"
	"github.com/shopspring/decimal"
)

// rawDocument is the loose shape accepted from extraction exports. Amounts
// may be numbers or strings such as "₹10,000.00"; dates may be ISO dates,
// RFC 3339 timestamps or day-first numeric dates.
type rawDocument struct {
	Amount      json.RawMessage `json:"amount"`
	TaxPercent  json.RawMessage `json:"tax_percent"`
	DocumentID  string          `json:"document_id"`
	Vendor      string          `json:"vendor"`
	Date        string          `json:"date"`
	TaxCategory string          `json:"tax_category"`
	RawText     string          `json:"raw_text"`
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"2 Jan 2006",
	"January 2, 2006",
}

// ParseJSON reads one document object or an array of them. source names the
// origin and seeds document ids that are missing.
func ParseJSON(r io.Reader, source string) ([]Item, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON: %w", err)
	}
	data = bytes.TrimSpace(data)

	var raws []rawDocument
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("failed to decode document array: %w", err)
		}
	} else {
		var one rawDocument
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		raws = []rawDocument{one}
	}

	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	items := make([]Item, 0, len(raws))
	for i, raw := range raws {
		item := convertRaw(raw, source)
		if item.Fields.DocumentID == "" {
			if len(raws) == 1 {
				item.Fields.DocumentID = base
			} else {
				item.Fields.DocumentID = fmt.Sprintf("%s#%d", base, i+1)
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func convertRaw(raw rawDocument, source string) Item {
	item := Item{Fields: model.ExtractedFields{
		DocumentID:  strings.TrimSpace(raw.DocumentID),
		Vendor:      strings.TrimSpace(raw.Vendor),
		TaxCategory: strings.ToLower(strings.TrimSpace(raw.TaxCategory)),
		RawText:     raw.RawText,
		Source:      source,
	}}

	amount, err := ParseMoney(raw.Amount)
	if err != nil {
		item.Err = fmt.Errorf("%w: %w", common.ErrInvalidAmount, err)
	}
	item.Fields.Amount = amount

	// A bad percentage or date is treated as absent.
	if pct, err := ParseMoney(raw.TaxPercent); err == nil {
		item.Fields.TaxPercent = pct
	} else {
		slog.Debug("Ignoring unparseable tax percent", "source", source, "error", err)
	}
	if d, ok := ParseDate(raw.Date); ok {
		item.Fields.Date = &d
	} else if raw.Date != "" {
		slog.Debug("Ignoring unparseable date", "source", source, "date", raw.Date)
	}
	return item
}

// ParseMoney parses a JSON number or a string amount. An absent or null
// value yields nil without error.
func ParseMoney(raw json.RawMessage) (*decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, nil
	}
	s = strings.Trim(s, `"`)
	for _, cut := range []string{"₹", "INR", "Rs.", "Rs", ",", "%", " "} {
		s = strings.ReplaceAll(s, cut, "")
	}
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("unparseable amount %s", raw)
	}
	return &d, nil
}

// ParseDate tries the accepted layouts in order.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
