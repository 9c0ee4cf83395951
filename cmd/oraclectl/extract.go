package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stellar-oracle/love-oracle/internal/config"
	"github.com/stellar-oracle/love-oracle/internal/extract"
)

func extractCmd() *cobra.Command {
	var (
		catalogPath string
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Read the match likelihood back out of a generated reading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			catalog, err := config.LoadCatalog(catalogPath)
			if err != nil {
				return err
			}
			extractor, err := extract.NewExtractor(catalog.MatchPatterns)
			if err != nil {
				return err
			}

			out := struct {
				extract.Result
				Summary  string   `json:"summary"`
				Patterns []string `json:"patterns,omitempty"`
			}{Result: extractor.Extract(string(text)), Summary: extract.Summary(string(text))}
			if verbose {
				out.Patterns = extractor.Patterns()
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "TOML catalog with custom match patterns")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Also print the patterns tried, in order")

	return cmd
}
