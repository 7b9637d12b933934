// Package cli provides styled terminal output and the interactive correction
// form.
package cli

import (
	"fmt"
	"strings"

	"github.com/Veraticus/autobooks/internal/engine"
	"github.com/Veraticus/autobooks/internal/model"
	"github.com/Veraticus/autobooks/internal/storage"
	"github.com/charmbracelet/lipgloss"
)

var (
	// PrimaryColor is the main theme color.
	PrimaryColor = lipgloss.Color("#5B8DEF")
	// SuccessColor indicates successful operations.
	SuccessColor = lipgloss.Color("#4ECDC4")
	// WarningColor indicates warnings or caution messages.
	WarningColor = lipgloss.Color("#FFE66D")
	// ErrorColor indicates errors or failure messages.
	ErrorColor = lipgloss.Color("#FF6B6B")
	// InfoColor indicates informational messages.
	InfoColor = lipgloss.Color("#95E1D3")
	// SubtleColor indicates less prominent UI elements.
	SubtleColor = lipgloss.Color("#666666")

	// TitleStyle is used for section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			MarginBottom(1)

	// SuccessStyle formats success messages.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor)

	// WarningStyle formats warning messages.
	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor)

	// ErrorStyle formats error messages.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor)

	// InfoStyle formats informational messages.
	InfoStyle = lipgloss.NewStyle().
			Foreground(InfoColor)

	// SubtleStyle formats less prominent text.
	SubtleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor)

	// BoldStyle makes text bold.
	BoldStyle = lipgloss.NewStyle().
			Bold(true)

	// BoxStyle is used for bordered content boxes.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(1, 2)

	// TableHeaderStyle is used for table headers.
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(lipgloss.Color("#333"))

	// TableCellStyle formats table cells with appropriate padding.
	TableCellStyle = lipgloss.NewStyle().
			PaddingRight(2)

	// PromptStyle is used for user prompts.
	PromptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor)
)

// Icons.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	BookIcon    = "📒"
	ChartIcon   = "📊"
)

// FormatSuccess formats a success message with icon.
func FormatSuccess(message string) string {
	return SuccessStyle.Render(SuccessIcon + " " + message)
}

// FormatError formats an error message with icon.
func FormatError(message string) string {
	return ErrorStyle.Render(ErrorIcon + " " + message)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(message string) string {
	return WarningStyle.Render(WarningIcon + " " + message)
}

// FormatInfo formats an info message with icon.
func FormatInfo(message string) string {
	return InfoStyle.Render(InfoIcon + " " + message)
}

// FormatTitle formats a title with the book icon.
func FormatTitle(title string) string {
	return TitleStyle.Render(BookIcon + " " + title)
}

// RenderBox renders content in a styled box.
func RenderBox(title, content string) string {
	boxTitle := TitleStyle.
		UnsetMargins().
		Render(title)

	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, boxTitle, content))
}

// RenderTable lays out rows under a bold header with padded columns.
func RenderTable(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	render := func(cells []string, style lipgloss.Style) string {
		out := make([]string, len(cells))
		for i, cell := range cells {
			out[i] = style.Width(widths[i] + 2).Render(cell)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, out...)
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, render(header, TableHeaderStyle))
	for _, row := range rows {
		lines = append(lines, render(row, TableCellStyle))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// RenderDocument summarizes an escalated document for review.
func RenderDocument(doc model.PendingDocument) string {
	f := doc.Fields
	vendor := f.Vendor
	if vendor == "" {
		vendor = WarningStyle.Render("(missing)")
	}
	amount := WarningStyle.Render("(missing)")
	if f.Amount != nil {
		amount = f.Amount.StringFixed(2)
	}

	lines := []string{
		fmt.Sprintf("%s %s", BoldStyle.Render("Vendor:"), vendor),
		fmt.Sprintf("%s %s", BoldStyle.Render("Amount:"), amount),
	}
	if f.Date != nil {
		lines = append(lines, fmt.Sprintf("%s %s", BoldStyle.Render("Date:"), f.Date.Format("2006-01-02")))
	}
	if f.TaxCategory != "" {
		lines = append(lines, fmt.Sprintf("%s %s", BoldStyle.Render("Tax category:"), f.TaxCategory))
	}
	lines = append(lines,
		fmt.Sprintf("%s %s (%s)", BoldStyle.Render("Escalated:"), string(doc.Reason), doc.Candidate.Confidence),
	)
	if text := strings.TrimSpace(f.RawText); text != "" {
		if len(text) > 200 {
			text = text[:200] + "…"
		}
		lines = append(lines, SubtleStyle.Render(text))
	}

	return RenderBox("Document "+doc.DocumentID, strings.Join(lines, "\n"))
}

// RenderBatchSummary renders the outcome counts of a processing run.
func RenderBatchSummary(s engine.BatchSummary) string {
	lines := []string{
		FormatSuccess(fmt.Sprintf("Auto-posted:     %d", s.AutoPosted)),
		FormatSuccess(fmt.Sprintf("Pattern matched: %d", s.PatternMatched)),
		FormatWarning(fmt.Sprintf("Escalated:       %d", s.Escalated)),
	}
	if s.Duplicates > 0 {
		lines = append(lines, FormatInfo(fmt.Sprintf("Already seen:    %d", s.Duplicates)))
	}
	if s.Failed > 0 {
		lines = append(lines, FormatError(fmt.Sprintf("Failed:          %d", s.Failed)))
	}
	return RenderBox(ChartIcon+" Processing summary", strings.Join(lines, "\n"))
}

// RenderLedgerSummary renders ledger totals per status.
func RenderLedgerSummary(s storage.LedgerSummary) string {
	statuses := []model.TransactionStatus{model.StatusAutoPosted, model.StatusPatternMatched, model.StatusUserConfirmed}
	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		t := s.ByStatus[status]
		rows = append(rows, []string{string(status), fmt.Sprintf("%d", t.Count), t.Debit.StringFixed(2)})
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		RenderTable([]string{"Status", "Entries", "Debit"}, rows),
		"",
		fmt.Sprintf("%s %s", BoldStyle.Render("Total debit: "), s.TotalDebit.StringFixed(2)),
		fmt.Sprintf("%s %s", BoldStyle.Render("Total credit:"), s.TotalCredit.StringFixed(2)),
		fmt.Sprintf("%s %s", BoldStyle.Render("Total TDS:   "), s.TotalTDS.StringFixed(2)),
		fmt.Sprintf("%s %s", BoldStyle.Render("Avg. confidence:"), s.AverageConfidence),
	)
	return RenderBox(ChartIcon+" Ledger summary", body)
}
