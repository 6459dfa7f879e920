package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newFindCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "find QUERY",
		Short: "Keyword search over indexed messages",
		Long: `Search the keyword index kept next to the vector store. Requires
store.text_index: true in the config. Accepts bleve query syntax, e.g.
subject:invoice or sender:billing@example.com.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.text == nil {
				return errors.New("text index is disabled; set store.text_index: true and re-run ingest")
			}

			hits, err := a.text.Search(strings.Join(args, " "), limit)
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), hits)
			}

			w := cmd.OutOrStdout()
			if len(hits) == 0 {
				fmt.Fprintln(w, "No results")
				return nil
			}
			for _, h := range hits {
				fmt.Fprintf(w, "%-40s %6.3f  %s  %s\n", h.ID, h.Score, h.Sender, h.Subject)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of results")
	return cmd
}
