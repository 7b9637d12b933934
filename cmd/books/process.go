package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Veraticus/autobooks/internal/cli"
	"github.com/Veraticus/autobooks/internal/common"
	"github.com/Veraticus/autobooks/internal/engine"
	"github.com/Veraticus/autobooks/internal/intake"
	"github.com/Veraticus/autobooks/internal/model"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func processCmd() *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "process <path>...",
		Short: "Post extracted documents to the ledger",
		Long: `Process JSON extraction exports and OFX/QFX statements.

Each path may be a file or a directory, which is walked for supported files.
Documents that cannot be posted with confidence are saved for review; with
--interactive they are reviewed immediately.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx, stop := handler.HandleInterrupts(cmd.Context())
			defer stop()

			items, err := intake.LoadAll(ctx, args)
			if err != nil {
				return common.NewUserError("Could not read the input documents", err)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning("No documents found"))
				return nil
			}

			a, err := openApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := cmd.OutOrStdout()
			docs, summary := splitInvalid(items, out)

			if interactive {
				s, err := processInteractive(ctx, a.engine, docs, cli.TerminalCorrector{}, out)
				summary = merge(summary, s)
				if err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
			} else {
				summary = merge(summary, processBatch(ctx, a.engine, docs, out))
			}

			fmt.Fprintln(out, cli.RenderBatchSummary(summary))
			if summary.Escalated > 0 && !interactive {
				fmt.Fprintln(out, cli.FormatInfo("Review escalations with: books pending"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "review escalated documents as they happen")
	return cmd
}

// splitInvalid reports documents that failed to load and counts them as failed.
func splitInvalid(items []intake.Item, out io.Writer) ([]model.ExtractedFields, engine.BatchSummary) {
	var summary engine.BatchSummary
	docs := make([]model.ExtractedFields, 0, len(items))
	for _, item := range items {
		if item.Err != nil {
			summary.Failed++
			fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%s: %v", item.Fields.DocumentID, item.Err)))
			continue
		}
		docs = append(docs, item.Fields)
	}
	return docs, summary
}

func processBatch(ctx context.Context, eng *engine.Engine, docs []model.ExtractedFields, out io.Writer) engine.BatchSummary {
	bar := progressbar.NewOptions(len(docs),
		progressbar.OptionSetWriter(out),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Posting documents...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(out)
		}),
	)

	items := eng.ProcessBatch(ctx, docs, engine.WithProgress(func(engine.BatchItem) {
		if err := bar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}))

	for _, item := range items {
		switch {
		case item.Err == nil, errors.Is(item.Err, context.Canceled):
		case errors.Is(item.Err, engine.ErrAlreadyProcessed):
			fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%s already processed, skipped", item.Result.DocumentID)))
		default:
			fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%s: %v", item.Result.DocumentID, item.Err)))
		}
	}
	return engine.Summarize(items)
}

// processInteractive handles documents one at a time and asks for a
// correction as soon as a document escalates. A skipped form leaves the
// document pending.
func processInteractive(ctx context.Context, eng *engine.Engine, docs []model.ExtractedFields, corrector cli.Corrector, out io.Writer) (engine.BatchSummary, error) {
	var summary engine.BatchSummary
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		res, err := eng.Process(ctx, doc)
		if errors.Is(err, engine.ErrAlreadyProcessed) {
			summary.Duplicates++
			fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%s already processed, skipped", res.DocumentID)))
			continue
		}
		if err != nil {
			summary.Failed++
			fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%s: %v", res.DocumentID, err)))
			if res.State != engine.StateAutoPosted && res.State != engine.StateMatched {
				continue
			}
		}

		switch res.State {
		case engine.StateAutoPosted:
			summary.AutoPosted++
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s posted automatically (%s)", res.DocumentID, res.Candidate.Confidence)))
			continue
		case engine.StateMatched:
			summary.PatternMatched++
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s matched a past correction for %s", res.DocumentID, res.Transaction.RuleApplied)))
			continue
		}

		resolved, err := resolveInteractive(ctx, eng, *res.Pending, corrector, out)
		if err != nil {
			return summary, err
		}
		if !resolved {
			summary.Escalated++
		}
	}
	return summary, nil
}

// resolveInteractive shows the form until the correction is accepted or
// skipped. It reports whether the document was resolved.
func resolveInteractive(ctx context.Context, eng *engine.Engine, doc model.PendingDocument, corrector cli.Corrector, out io.Writer) (bool, error) {
	for {
		correction, err := corrector.Correct(ctx, doc)
		if errors.Is(err, cli.ErrSkipped) {
			fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%s left for review", doc.DocumentID)))
			return false, nil
		}
		if err != nil {
			return false, err
		}

		res, err := eng.Resolve(ctx, doc.DocumentID, correction)
		switch {
		case err == nil, errors.Is(err, engine.ErrLedgerWrite):
			if err != nil {
				fmt.Fprintln(out, cli.FormatWarning(err.Error()))
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s posted: %s / %s, TDS %s",
				doc.DocumentID, res.Transaction.DebitAccount, res.Transaction.CreditAccount, res.Transaction.TDSAmount.StringFixed(2))))
			return true, nil
		case errors.Is(err, common.ErrDataAbsence):
			fmt.Fprintln(out, cli.FormatError(err.Error()))
		default:
			return false, err
		}
	}
}

func merge(a, b engine.BatchSummary) engine.BatchSummary {
	return engine.BatchSummary{
		AutoPosted:     a.AutoPosted + b.AutoPosted,
		PatternMatched: a.PatternMatched + b.PatternMatched,
		Escalated:      a.Escalated + b.Escalated,
		Duplicates:     a.Duplicates + b.Duplicates,
		Failed:         a.Failed + b.Failed,
	}
}
