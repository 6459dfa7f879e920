package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/DreamCats/mailtriage/internal/config"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					return err
				}
			}

			created, err := config.WriteDefaultTemplate(path)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if created {
				fmt.Fprintf(w, "%s Created %s\n", color.GreenString("✓"), path)
			} else {
				fmt.Fprintf(w, "Config already exists at %s\n", path)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mailtriage version %s\n", Version)
		},
	}
}
