package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/DreamCats/mailtriage/internal/mailsource"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check PATH",
		Short: "Report near-duplicates without storing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			msgs, err := mailsource.NewLoader(a.cfg.Source, a.logger).Load(args[0])
			if err != nil {
				return err
			}

			results := make([]ingestResult, 0, len(msgs))
			failed := 0
			for i, res := range a.detector.CheckAll(cmd.Context(), msgs) {
				msg := msgs[i]
				r := ingestResult{ID: msg.ID, Subject: msg.Subject, Matches: res.Value()}
				if res.Failed() {
					failed++
					r.Error = res.Err.Error()
				}
				results = append(results, r)
			}

			if opts.jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				w := cmd.OutOrStdout()
				for _, r := range results {
					switch {
					case r.Error != "":
						fmt.Fprintf(w, "%s %s: %s\n", color.RedString("✗"), r.ID, r.Error)
					case len(r.Matches) == 0:
						fmt.Fprintf(w, "%s %s\n", color.GreenString("✓"), r.ID)
					default:
						fmt.Fprintf(w, "%s %s matches %s (%.3f)\n", color.YellowString("≈"), r.ID, r.Matches[0].ID, r.Matches[0].Score)
					}
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d messages could not be checked", failed, len(msgs))
			}
			return nil
		},
	}
}
