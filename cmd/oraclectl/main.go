package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "oraclectl",
		Short:         "Love Oracle offline tools - parse, score and inspect chat transcripts",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(parseCmd())
	root.AddCommand(scoreCmd())
	root.AddCommand(extractCmd())
	root.AddCommand(promptCmd())
	root.AddCommand(checkKeyCmd())

	return root
}
