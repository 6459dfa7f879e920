package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/DreamCats/mailtriage/internal/dedupe"
	"github.com/DreamCats/mailtriage/internal/mailsource"
	"github.com/DreamCats/mailtriage/internal/notify"
	"github.com/DreamCats/mailtriage/internal/progress"
)

func newDetectCmd(opts *rootOptions) *cobra.Command {
	var threshold float64
	var sendDigest bool

	cmd := &cobra.Command{
		Use:   "detect PATH",
		Short: "Group messages into near-duplicate clusters",
		Long: `Load messages from PATH and partition them into duplicate groups using the
current index contents. Each message appears in at most one group. Nothing is
written to the index; run ingest first.

Grouping follows input order: the first message of a cluster becomes its
primary, and members already claimed by an earlier group are not reused.

Examples:
  mailtriage detect ./inbox
  mailtriage detect ./inbox --threshold 0.9 --notify`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("threshold") {
				threshold = a.cfg.Dedupe.Threshold
			}

			msgs, err := mailsource.NewLoader(a.cfg.Source, a.logger).Load(args[0])
			if err != nil {
				return err
			}

			stop := progress.StartSpinner(progress.Enabled() && !opts.jsonOutput, cmd.ErrOrStderr(), "detecting duplicates")
			res := a.detector.DetectBatch(cmd.Context(), msgs, threshold)
			stop()

			hook := notify.NewWebhook(a.cfg.Notify.WebhookURL, a.cfg.Notify.Channel, 10*time.Second, a.logger)
			if res.Failed() {
				if sendDigest {
					notice := fmt.Sprintf("No digest for %s: %v", args[0], res.Err)
					if err := hook.PostText(cmd.Context(), "Duplicate detection degraded", notice); err != nil {
						a.logger.Warn("failed to send degraded notice", "err", err)
					}
				}
				return fmt.Errorf("duplicate detection failed: %w", res.Err)
			}
			groups := res.Value()

			if opts.jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), groups); err != nil {
					return err
				}
			} else {
				printGroups(cmd, groups, len(msgs))
			}

			if sendDigest && len(groups) > 0 {
				if err := hook.PostDigest(cmd.Context(), groups); err != nil {
					return fmt.Errorf("failed to send digest: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0, "similarity threshold in [0,1] (default from config)")
	cmd.Flags().BoolVar(&sendDigest, "notify", false, "post a digest to the configured webhook")
	return cmd
}

func printGroups(cmd *cobra.Command, groups []dedupe.Group, total int) {
	w := cmd.OutOrStdout()
	if len(groups) == 0 {
		fmt.Fprintf(w, "%s No duplicates among %d messages\n", color.GreenString("✓"), total)
		return
	}

	bold := color.New(color.Bold)
	for i, g := range groups {
		subject := g.Subject
		if subject == "" {
			subject = "(no subject)"
		}
		bold.Fprintf(w, "Group %d: %s", i+1, subject)
		fmt.Fprintf(w, " (%d messages)\n", g.Count())
		fmt.Fprintf(w, "  primary  %s\n", g.PrimaryID)
		for j, id := range g.MemberIDs {
			fmt.Fprintf(w, "  member   %s  %.3f\n", id, g.Scores[j])
		}
	}
	fmt.Fprintf(w, "\n%d groups among %d messages\n", len(groups), total)
}
