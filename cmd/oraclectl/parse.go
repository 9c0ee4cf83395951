package main

import (
	"github.com/spf13/cobra"
	"github.com/stellar-oracle/love-oracle/internal/chatlog"
)

func parseCmd() *cobra.Command {
	var encodings string
	var senders bool

	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Print the messages extracted from a chat export as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := readTranscript(args[0], encodings)
			if err != nil {
				return err
			}

			if senders {
				return printJSON(cmd.OutOrStdout(), chatlog.SenderCounts(result.Messages))
			}

			return printJSON(cmd.OutOrStdout(), result.Messages)
		},
	}

	cmd.Flags().StringVar(&encodings, "encodings", "", "Comma-separated encodings to try in order")
	cmd.Flags().BoolVar(&senders, "senders", false, "Print message counts per sender instead")

	return cmd
}
