package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/DreamCats/mailtriage/internal/dedupe"
	"github.com/DreamCats/mailtriage/internal/mailsource"
	"github.com/DreamCats/mailtriage/internal/progress"
	"github.com/DreamCats/mailtriage/internal/store"
	"github.com/DreamCats/mailtriage/internal/textsearch"
)

type ingestResult struct {
	ID      string        `json:"id"`
	Subject string        `json:"subject"`
	Matches []store.Match `json:"matches"`
	Error   string        `json:"error,omitempty"`
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest PATH",
		Short: "Store messages and report earlier near-duplicates",
		Long: `Load .eml files or JSON exports from PATH, add each message to the index
and report stored messages that are near-duplicates of it.

Examples:
  mailtriage ingest ./inbox
  mailtriage ingest export.json --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			msgs, err := mailsource.NewLoader(a.cfg.Source, a.logger).Load(args[0])
			if err != nil {
				return err
			}

			bar := progress.New(progress.Enabled() && !opts.jsonOutput, cmd.ErrOrStderr(), "ingesting")
			bar.Start(len(msgs))

			results := make([]ingestResult, 0, len(msgs))
			failed := 0
			for _, msg := range msgs {
				res := a.detector.IngestAndCheck(cmd.Context(), msg)
				r := ingestResult{ID: msg.ID, Subject: msg.Subject, Matches: res.Value()}
				if res.Failed() {
					failed++
					r.Error = res.Err.Error()
				} else if a.text != nil {
					if err := a.text.Put(msg.ID, textDoc(msg)); err != nil {
						a.logger.Warn("text index update failed", "id", msg.ID, "err", err)
					}
				}
				results = append(results, r)
				bar.Increment()
			}
			bar.Finish()

			a.logger.Info("ingest finished", "messages", len(msgs), "failed", failed, "stored", a.index.Count(cmd.Context()))

			if opts.jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				printIngest(cmd, results)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d messages could not be checked", failed, len(msgs))
			}
			return nil
		},
	}
}

func textDoc(msg dedupe.Message) textsearch.Doc {
	return textsearch.Doc{Subject: msg.Subject, Sender: msg.Sender, Content: msg.Body}
}

func printIngest(cmd *cobra.Command, results []ingestResult) {
	w := cmd.OutOrStdout()
	withDups := 0
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(w, "%s %s: %s\n", color.RedString("✗"), r.ID, r.Error)
			continue
		}
		if len(r.Matches) == 0 {
			continue
		}
		withDups++
		fmt.Fprintf(w, "%s %s %q\n", color.YellowString("≈"), r.ID, r.Subject)
		for _, m := range r.Matches {
			fmt.Fprintf(w, "    %s  %.3f\n", m.ID, m.Score)
		}
	}
	fmt.Fprintf(w, "\nIngested %d messages, %d with near-duplicates\n", len(results), withDups)
}
