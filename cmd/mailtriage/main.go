package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "0.3.0"

type rootOptions struct {
	configPath string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "mailtriage",
		Short: "Find near-duplicate emails with embeddings",
		Long: `mailtriage embeds incoming messages, stores them in a local similarity
index and reports messages that are near-duplicates of ones already seen.

Configuration is read from --config, $MAILTRIAGE_CONFIG or
~/.mailtriage/config.yaml. Without a config file the offline local embedder
and default settings are used.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output as JSON")

	rootCmd.AddCommand(
		newIngestCmd(opts),
		newCheckCmd(opts),
		newDetectCmd(opts),
		newFindCmd(opts),
		newStatsCmd(opts),
		newClearCmd(opts),
		newInitCmd(opts),
		newVersionCmd(),
	)

	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		stop()
		os.Exit(1)
	}
}
