package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newClearCmd(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored message from the index",
		Long: `Delete every stored message from the index and the keyword index.
There is no undo. Required after changing the embedding model or dimensions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear the index without --yes")
			}

			a, err := openApp(cmd, opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			before := a.index.Count(cmd.Context())
			if err := a.index.Clear(cmd.Context()); err != nil {
				return err
			}
			if a.text != nil {
				if err := a.text.Reset(); err != nil {
					return err
				}
			}
			a.logger.Warn("index cleared", "collection", a.index.Collection(), "removed", before)

			fmt.Fprintf(cmd.OutOrStdout(), "%s Removed %d messages from %s\n", color.GreenString("✓"), before, a.index.Collection())
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
