package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Veraticus/autobooks/internal/model"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// OFXParser turns the debits of OFX/QFX bank and card statements into
// documents. Credits (deposits, refunds) are not payables and are skipped.
type OFXParser struct{}

// NewOFXParser creates a new OFX parser.
func NewOFXParser() *OFXParser {
	return &OFXParser{}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *OFXParser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	// SEVERITY must be upper case.
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	// SGML files from some banks omit the closing bracket on bare tags.
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

// ParseFile parses statement transactions from reader.
func (p *OFXParser) ParseFile(_ context.Context, reader io.Reader, source string) ([]model.ExtractedFields, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var (
		docs    []model.ExtractedFields
		skipped int
	)
	collect := func(list *ofxgo.TransactionList) {
		if list == nil {
			return
		}
		for _, tx := range list.Transactions {
			doc, ok := p.convertTransaction(tx, source)
			if !ok {
				skipped++
				continue
			}
			docs = append(docs, doc)
		}
	}

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			collect(stmt.BankTranList)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			collect(stmt.BankTranList)
		}
	}

	slog.Info("Parsed OFX file",
		"source", source,
		"documents", len(docs),
		"skipped_credits", skipped)

	return docs, nil
}

// convertTransaction maps a debit to a document. The bool is false for credits.
func (p *OFXParser) convertTransaction(tx ofxgo.Transaction, source string) (model.ExtractedFields, bool) {
	amount, err := decimal.NewFromString(tx.TrnAmt.FloatString(2))
	if err != nil || amount.IsPositive() {
		return model.ExtractedFields{}, false
	}
	amount = amount.Abs()

	vendor := p.extractVendorName(tx)
	text := strings.TrimSpace(string(tx.Name) + " " + string(tx.Memo))

	id := string(tx.FiTID)
	if id == "" {
		sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s", source, tx.DtPosted.Format("20060102"), vendor, amount)))
		id = hex.EncodeToString(sum[:8])
	}

	date := tx.DtPosted.Time
	return model.ExtractedFields{
		DocumentID: id,
		Vendor:     vendor,
		Amount:     &amount,
		Date:       &date,
		RawText:    text,
		Source:     source,
	}, true
}

// extractVendorName prefers PAYEE, then NAME, falling back to MEMO when NAME is generic.
func (p *OFXParser) extractVendorName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return string(tx.Payee.Name)
	}

	name := string(tx.Name)
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}
	name = strings.TrimSpace(name)

	prefixes := []string{
		"POS PURCHASE ",
		"PURCHASE AUTHORIZED ON ",
		"DEBIT CARD PURCHASE ",
		"ACH DEBIT ",
		"NEFT DR ",
		"IMPS DR ",
		"CHECK CARD ",
		"DEBIT PURCHASE ",
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Drop a leading "MM/DD " date.
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}
	return name
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBIT", "PAYMENT", "PURCHASE", "TRANSFER", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}
