package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type statsOutput struct {
	Path       string   `json:"path"`
	Collection string   `json:"collection"`
	Metric     string   `json:"metric"`
	Items      int64    `json:"items"`
	Dimension  int      `json:"dimension"`
	Models     []string `json:"models"`
	SizeBytes  int64    `json:"size_bytes"`
	TextDocs   *uint64  `json:"text_docs,omitempty"`
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show statistics about the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.index.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := statsOutput{
				Path:       stats.Path,
				Collection: a.index.Collection(),
				Metric:     string(a.index.Metric()),
				Items:      stats.ItemCount,
				Dimension:  stats.Dimension,
				Models:     stats.Models,
				SizeBytes:  stats.SizeBytes,
			}
			if a.text != nil {
				n, err := a.text.Count()
				if err != nil {
					return err
				}
				out.TextDocs = &n
			}

			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Index Statistics")
			fmt.Fprintln(w)
			fmt.Fprintf(w, "Path:       %s\n", out.Path)
			fmt.Fprintf(w, "Collection: %s (%s)\n", out.Collection, out.Metric)
			fmt.Fprintf(w, "Messages:   %6d\n", out.Items)
			fmt.Fprintf(w, "Dimension:  %6d\n", out.Dimension)
			fmt.Fprintf(w, "Models:     %s\n", strings.Join(out.Models, ", "))
			fmt.Fprintf(w, "Size:       %6d KB\n", out.SizeBytes/1024)
			if out.TextDocs != nil {
				fmt.Fprintf(w, "Text docs:  %6d\n", *out.TextDocs)
			}
			return nil
		},
	}
}
