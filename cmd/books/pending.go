package main

import (
	"fmt"
	"strings"

	"github.com/Veraticus/autobooks/internal/cli"
	"github.com/Veraticus/autobooks/internal/common"
	"github.com/Veraticus/autobooks/internal/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List documents waiting for review",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), appOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			docs, err := a.engine.PendingDocuments(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(docs) == 0 {
				fmt.Fprintln(out, cli.FormatSuccess("Nothing to review"))
				return nil
			}

			rows := make([][]string, 0, len(docs))
			for _, doc := range docs {
				rows = append(rows, pendingRow(doc))
			}
			fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%d documents need review", len(docs))))
			fmt.Fprintln(out, cli.RenderTable([]string{"Document", "Vendor", "Amount", "Reason", "Confidence", "Since"}, rows))
			fmt.Fprintln(out, cli.FormatInfo("Resolve one with: books resolve <document> --interactive"))
			return nil
		},
	}
}

func pendingRow(doc model.PendingDocument) []string {
	amount := "-"
	if doc.Fields.Amount != nil {
		amount = doc.Fields.Amount.StringFixed(2)
	}
	vendor := doc.Fields.Vendor
	if vendor == "" {
		vendor = "-"
	}
	return []string{
		doc.DocumentID,
		vendor,
		amount,
		string(doc.Reason),
		doc.Candidate.Confidence.String(),
		doc.CreatedAt.Format("2006-01-02 15:04"),
	}
}

func resolveCmd() *cobra.Command {
	var (
		debit       string
		credit      string
		category    string
		vendor      string
		amount      string
		tdsFlag     bool
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <document>",
		Short: "Correct an escalated document and learn a rule from it",
		Long: `Post an escalated document with the accounts you supply. The answer is
remembered as a rule for the vendor, so the next document from it can be
posted automatically.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			documentID := args[0]
			out := cmd.OutOrStdout()

			if interactive {
				doc, err := a.engine.PendingDocument(ctx, documentID)
				if err != nil {
					return err
				}
				_, err = resolveInteractive(ctx, a.engine, *doc, cli.TerminalCorrector{}, out)
				return err
			}

			correction := model.Correction{
				DebitAccount:  strings.TrimSpace(debit),
				CreditAccount: strings.TrimSpace(credit),
				Category:      strings.ToLower(strings.TrimSpace(category)),
				Vendor:        strings.TrimSpace(vendor),
				TDSApplicable: tdsFlag,
			}
			if amount != "" {
				d, err := decimal.NewFromString(amount)
				if err != nil {
					return common.NewUserError("--amount must be a number", err)
				}
				correction.Amount = &d
			}

			res, err := a.engine.Resolve(ctx, documentID, correction)
			if err != nil && res.Transaction == nil {
				return err
			}
			if err != nil {
				fmt.Fprintln(out, cli.FormatWarning(err.Error()))
			}

			tx := res.Transaction
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s posted: debit %s %s, credit %s %s, TDS %s",
				documentID,
				tx.DebitAccount, tx.DebitAmount.StringFixed(2),
				tx.CreditAccount, tx.CreditAmount.StringFixed(2),
				tx.TDSAmount.StringFixed(2))))
			fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Learned rule for %q", res.Rule.Vendor)))
			return nil
		},
	}

	cmd.Flags().StringVar(&debit, "debit", "", "debit account")
	cmd.Flags().StringVar(&credit, "credit", "", "credit account")
	cmd.Flags().StringVar(&category, "category", "", "withholding category (rent, salary, professional, consultancy, contract)")
	cmd.Flags().StringVar(&vendor, "vendor", "", "vendor name, used only if the document has none")
	cmd.Flags().StringVar(&amount, "amount", "", "amount, used only if the document has none")
	cmd.Flags().BoolVar(&tdsFlag, "tds", false, "deduct TDS")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "fill the correction in a form")
	cmd.MarkFlagsMutuallyExclusive("interactive", "debit")
	cmd.MarkFlagsMutuallyExclusive("interactive", "credit")

	return cmd
}
