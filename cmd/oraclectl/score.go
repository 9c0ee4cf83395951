package main

import (
	"github.com/spf13/cobra"
	"github.com/stellar-oracle/love-oracle/internal/engagement"
)

func scoreCmd() *cobra.Command {
	var encodings string

	cmd := &cobra.Command{
		Use:   "score FILE",
		Short: "Print the daily engagement series and trend of a chat export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := readTranscript(args[0], encodings)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), engagement.Analyze(result.Messages))
		},
	}

	cmd.Flags().StringVar(&encodings, "encodings", "", "Comma-separated encodings to try in order")

	return cmd
}
