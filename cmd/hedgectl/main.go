// hedgectl inspects a hedged portfolio from the terminal: summary figures,
// scenario projections, spread pairs, bulk-import previews and screenshot
// recognition.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the persistent flags shared by every subcommand.
type options struct {
	file    string
	dataDir string
	output  string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "hedgectl",
		Short: "Inspect a hedged leveraged-ETF portfolio",
		Long: `hedgectl reads a portfolio document, either a JSON file given with --file
or the device's local cache, and prints valuations, scenario projections and
spread pairs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case outputTable, outputJSON, outputYAML:
				return nil
			default:
				return fmt.Errorf("unknown output %q: use table, json or yaml", opts.output)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.file, "file", "f", "", "Portfolio document JSON file (defaults to the local cache)")
	rootCmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Data directory holding device.db (defaults to the configured one)")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", outputTable, "Output format: table, json or yaml")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(summaryCmd(opts))
	rootCmd.AddCommand(scenarioCmd(opts))
	rootCmd.AddCommand(tableCmd(opts))
	rootCmd.AddCommand(spreadsCmd(opts))
	rootCmd.AddCommand(importCmd(opts))
	rootCmd.AddCommand(ocrCSVCmd(opts))

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hedgectl version %s\n", version)
		},
	}
}
