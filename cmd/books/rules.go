package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Veraticus/autobooks/internal/cli"
	"github.com/Veraticus/autobooks/internal/rules"
	"github.com/Veraticus/autobooks/internal/similarity"
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and manage learned vendor rules",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesShowCmd())
	cmd.AddCommand(rulesDeleteCmd())

	return cmd
}

// openRules opens only the rule file, so inspecting rules never touches the
// database or the similarity index.
func openRules() (*rules.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return rules.Open(cfg.Paths.Rules)
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all vendor rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openRules()
			if err != nil {
				return err
			}

			all := store.All()
			out := cmd.OutOrStdout()
			if len(all) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No rules learned yet"))
				return nil
			}

			rows := make([][]string, 0, len(all))
			for _, r := range all {
				rows = append(rows, []string{
					r.Vendor,
					r.DebitAccount,
					r.CreditAccount,
					r.Category,
					strconv.FormatBool(r.TDSApplicable),
					strconv.Itoa(r.AppliedCount),
					r.LearnedAt.Format("2006-01-02"),
				})
			}
			fmt.Fprintln(out, cli.RenderTable(
				[]string{"Vendor", "Debit", "Credit", "Category", "TDS", "Applied", "Learned"}, rows))
			return nil
		},
	}
}

func rulesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <vendor>",
		Short: "Print one rule as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRules()
			if err != nil {
				return err
			}
			rule, ok := store.Lookup(args[0])
			if !ok {
				return fmt.Errorf("no rule for vendor %q", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rule)
		},
	}
}

func rulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <vendor>",
		Short: "Forget a vendor rule and its similarity pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := rules.Open(cfg.Paths.Rules)
			if err != nil {
				return err
			}
			if err := store.Delete(ctx, args[0]); err != nil {
				return err
			}

			if err := similarity.ForgetEverywhere(ctx, cfg.Paths.Patterns, args[0]); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted rule for %q", args[0])))
			return nil
		},
	}
}
