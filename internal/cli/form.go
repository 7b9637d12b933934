package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/autobooks/internal/model"
	"github.com/Veraticus/autobooks/internal/scoring"
	"github.com/Veraticus/autobooks/internal/tds"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// ErrSkipped is returned when the user leaves the form without submitting.
var ErrSkipped = errors.New("correction skipped")

type field int

const (
	fieldDebit field = iota
	fieldCredit
	fieldCategory
	fieldVendor
	fieldAmount
	fieldTDS
)

// CorrectionForm collects the accounts and withholding answer for one
// escalated document. Vendor and amount inputs appear only when the
// document is missing them.
type CorrectionForm struct {
	err        error
	inputs     map[field]*textinput.Model
	doc        model.PendingDocument
	correction model.Correction
	order      []field
	focus      int
	withhold   bool
	submitted  bool
	canceled   bool
}

// NewCorrectionForm builds a form prefilled from whatever the engine knew.
func NewCorrectionForm(doc model.PendingDocument) CorrectionForm {
	prefill := doc.Candidate.Classification
	category := prefill.Category
	if category == "" {
		category = doc.Fields.TaxCategory
	}
	if category == "" {
		category = scoring.GuessCategory(doc.Fields.RawText)
	}

	m := CorrectionForm{
		doc:      doc,
		inputs:   make(map[field]*textinput.Model),
		withhold: prefill.TDSApplicable || (prefill.IsZero() && tds.Default().Withholds(category)),
		order:    []field{fieldDebit, fieldCredit, fieldCategory},
	}

	m.addInput(fieldDebit, "Debit account (e.g. Rent Expense)", prefill.DebitAccount)
	m.addInput(fieldCredit, "Credit account (e.g. Bank)", prefill.CreditAccount)
	m.addInput(fieldCategory, "Category (rent, salary, professional, consultancy, contract)", category)
	if !doc.Fields.HasVendor() {
		m.addInput(fieldVendor, "Vendor name", "")
		m.order = append(m.order, fieldVendor)
	}
	if !doc.Fields.HasAmount() {
		m.addInput(fieldAmount, "Amount", "")
		m.order = append(m.order, fieldAmount)
	}
	m.order = append(m.order, fieldTDS)

	m.inputs[fieldDebit].Focus()
	return m
}

func (m *CorrectionForm) addInput(f field, placeholder, value string) {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = 80
	in.Width = 50
	in.SetValue(value)
	m.inputs[f] = &in
}

// Init implements tea.Model.
func (m CorrectionForm) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m CorrectionForm) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, m.updateFocused(msg)
	}

	switch key.String() {
	case "ctrl+c", "esc":
		m.canceled = true
		return m, tea.Quit
	case "tab", "down":
		return m, m.move(1)
	case "shift+tab", "up":
		return m, m.move(-1)
	case " ":
		if m.current() == fieldTDS {
			m.withhold = !m.withhold
			return m, nil
		}
	case "enter":
		if m.focus < len(m.order)-1 {
			return m, m.move(1)
		}
		correction, err := m.build()
		if err != nil {
			m.err = err
			return m, nil
		}
		m.correction = correction
		m.submitted = true
		return m, tea.Quit
	}

	return m, m.updateFocused(msg)
}

func (m *CorrectionForm) current() field {
	return m.order[m.focus]
}

func (m *CorrectionForm) move(delta int) tea.Cmd {
	if in, ok := m.inputs[m.current()]; ok {
		in.Blur()
	}
	m.focus = (m.focus + delta + len(m.order)) % len(m.order)
	if in, ok := m.inputs[m.current()]; ok {
		return in.Focus()
	}
	return nil
}

func (m *CorrectionForm) updateFocused(msg tea.Msg) tea.Cmd {
	in, ok := m.inputs[m.current()]
	if !ok {
		return nil
	}
	updated, cmd := in.Update(msg)
	*in = updated
	return cmd
}

func (m *CorrectionForm) value(f field) string {
	if in, ok := m.inputs[f]; ok {
		return strings.TrimSpace(in.Value())
	}
	return ""
}

func (m *CorrectionForm) build() (model.Correction, error) {
	c := model.Correction{
		DebitAccount:  m.value(fieldDebit),
		CreditAccount: m.value(fieldCredit),
		Category:      strings.ToLower(m.value(fieldCategory)),
		Vendor:        m.value(fieldVendor),
		TDSApplicable: m.withhold,
	}
	if c.DebitAccount == "" || c.CreditAccount == "" {
		return c, fmt.Errorf("debit and credit accounts are required")
	}
	if _, ok := m.inputs[fieldVendor]; ok && c.Vendor == "" {
		return c, fmt.Errorf("vendor is required")
	}
	if _, ok := m.inputs[fieldAmount]; ok {
		amount, err := decimal.NewFromString(m.value(fieldAmount))
		if err != nil || !amount.IsPositive() {
			return c, fmt.Errorf("amount must be a positive number")
		}
		c.Amount = &amount
	}
	return c, nil
}

// View implements tea.Model.
func (m CorrectionForm) View() string {
	var b strings.Builder

	b.WriteString(RenderDocument(m.doc))
	b.WriteString("\n\n")

	labels := map[field]string{
		fieldDebit:    "Debit",
		fieldCredit:   "Credit",
		fieldCategory: "Category",
		fieldVendor:   "Vendor",
		fieldAmount:   "Amount",
	}
	for i, f := range m.order {
		cursor := "  "
		if i == m.focus {
			cursor = PromptStyle.Render("> ")
		}
		if f == fieldTDS {
			box := "[ ]"
			if m.withhold {
				box = "[x]"
			}
			fmt.Fprintf(&b, "%s%s %s\n", cursor, box, BoldStyle.Render("Deduct TDS"))
			continue
		}
		label := lipgloss.NewStyle().Width(10).Render(labels[f])
		fmt.Fprintf(&b, "%s%s %s\n", cursor, BoldStyle.Render(label), m.inputs[f].View())
	}

	if m.err != nil {
		b.WriteString("\n" + FormatError(m.err.Error()) + "\n")
	}
	b.WriteString("\n" + SubtleStyle.Render("tab/↓ next • shift+tab/↑ back • space toggle TDS • enter submit • esc skip"))
	return b.String()
}

// Correction returns the submitted correction, or ErrSkipped.
func (m CorrectionForm) Correction() (model.Correction, error) {
	if !m.submitted || m.canceled {
		return model.Correction{}, ErrSkipped
	}
	return m.correction, nil
}

// Corrector asks a human for the correction of an escalated document.
type Corrector interface {
	Correct(ctx context.Context, doc model.PendingDocument) (model.Correction, error)
}

// TerminalCorrector runs CorrectionForm on a terminal.
type TerminalCorrector struct {
	In  io.Reader
	Out io.Writer
}

// Correct implements Corrector.
func (t TerminalCorrector) Correct(ctx context.Context, doc model.PendingDocument) (model.Correction, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if t.In != nil {
		opts = append(opts, tea.WithInput(t.In))
	}
	if t.Out != nil {
		opts = append(opts, tea.WithOutput(t.Out))
	}

	final, err := tea.NewProgram(NewCorrectionForm(doc), opts...).Run()
	if err != nil {
		return model.Correction{}, fmt.Errorf("correction form failed: %w", err)
	}
	form, ok := final.(CorrectionForm)
	if !ok {
		return model.Correction{}, fmt.Errorf("unexpected form model %T", final)
	}
	return form.Correction()
}
