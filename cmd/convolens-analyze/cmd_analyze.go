package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/convolens/internal/analyzer"
	"github.com/tjfontaine/convolens/internal/conversation"
	"github.com/tjfontaine/convolens/internal/export"
)

type analyzeFlags struct {
	format        string
	output        string
	context       string
	delay         time.Duration
	cutoff        int
	summary       bool
	summaryFormat string
}

func newAnalyzeCmd(g *globalFlags) *cobra.Command {
	af := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze <transcript|->",
		Short: "Analyze every message of a transcript",
		Long: `Parse a USER:/AI: transcript, flag and score every message one at a
time with a fixed pause between messages, then print the results.

Usage:
  convolens-analyze analyze chat.txt --api-key=test
  cat chat.txt | convolens-analyze analyze - -f csv -o results.csv
  convolens-analyze analyze chat.txt --cutoff=10 --summary`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, g, af, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&af.format, "format", "f", "table", "Output format: table, md, csv or json")
	f.StringVarP(&af.output, "output", "o", "", "Write results to this file instead of stdout")
	f.StringVar(&af.context, "context", "", "Additional context for the reviewer prompts")
	f.DurationVar(&af.delay, "delay", 0, "Pause between messages (default: analysis.batch_delay)")
	f.IntVar(&af.cutoff, "cutoff", 0, "Only analyze and export the first N messages (0 = all)")
	f.BoolVar(&af.summary, "summary", false, "Also print a summary of the conversation")
	f.StringVar(&af.summaryFormat, "summary-format", "", "Shape of the summary, e.g. \"three bullet points\"")
	return cmd
}

func runAnalyze(cmd *cobra.Command, g *globalFlags, af *analyzeFlags, path string) error {
	switch af.format {
	case "table", "md", "markdown", "csv", "json":
	default:
		return fmt.Errorf("unknown format %q (want table, md, csv or json)", af.format)
	}

	msgs, err := readTranscript(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return fmt.Errorf("%s: no USER: or AI: lines found", path)
	}

	a, opts, err := g.load(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	opts.AdditionalContext = af.context
	store := a.NewStore(
		conversation.WithAnalysisEnabled(false),
		conversation.WithAnalysisOptions(opts),
	)
	store.ImportMessages(msgs)
	store.SetCutoff(af.cutoff)

	batch := a.BatchOptions()
	if af.delay > 0 {
		batch.Delay = af.delay
	}
	stderr := cmd.ErrOrStderr()
	batch.Progress = func(done, total int) {
		fmt.Fprintf(stderr, "\ranalyzed %d/%d", done, total)
	}

	report := store.AnalyzeAll(cmd.Context(), batch)
	fmt.Fprintf(stderr, "\n%d analyzed, %d skipped, %d degraded, %d rate limited\n",
		report.Analyzed, report.Skipped, report.Degraded, report.RateLimited)
	if report.Aborted {
		return fmt.Errorf("analysis stopped: the provider rejected the API key")
	}
	if report.Cancelled {
		return cmd.Context().Err()
	}

	out := cmd.OutOrStdout()
	if af.output != "" {
		file, err := os.Create(af.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer file.Close()
		out = file
	}

	sheet := export.Build(store.FilteredMessages(), a.Registry.Categories, store.Principles())
	if err := writeSheet(out, sheet, af.format); err != nil {
		return err
	}

	if af.summary {
		s := a.Summarizer.Summarize(cmd.Context(), analyzer.SummaryInput{
			Messages:          store.FilteredMessages(),
			Flags:             store.FilteredFlags(conversation.FlagFilter{}),
			AdditionalContext: af.context,
			Format:            af.summaryFormat,
			Credentials:       opts.Credentials,
			Model:             opts.Model,
		})
		fmt.Fprintf(out, "\nSummary (%s):\n%s\n", s.Status, strings.TrimSpace(s.Text))
	}
	return nil
}

func writeSheet(w io.Writer, sheet export.Sheet, format string) error {
	switch format {
	case "csv":
		return export.WriteCSV(w, sheet)
	case "json":
		return export.WriteJSON(w, sheet)
	default:
		_, err := fmt.Fprintln(w, export.RenderTable(sheet, export.ParseMode(format)))
		return err
	}
}
