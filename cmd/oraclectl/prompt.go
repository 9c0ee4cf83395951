package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stellar-oracle/love-oracle/internal/chatlog"
	"github.com/stellar-oracle/love-oracle/internal/config"
	"github.com/stellar-oracle/love-oracle/internal/engagement"
	"github.com/stellar-oracle/love-oracle/internal/prompt"
)

func promptCmd() *cobra.Command {
	var encodings, catalogPath, partner, persona, tone, consultation string

	cmd := &cobra.Command{
		Use:   "prompt FILE",
		Short: "Print the prompts that would be sent to the model for a chat export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := readTranscript(args[0], encodings)
			if err != nil {
				return err
			}

			catalog, err := config.LoadCatalog(catalogPath)
			if err != nil {
				return err
			}

			scored := engagement.Analyze(result.Messages)
			system, user := prompt.NewBuilder().Build(prompt.Input{
				Persona:      catalog.Persona(persona),
				Tone:         catalog.Tone(tone),
				Counterpart:  partner,
				Consultation: consultation,
				Trend:        scored.Trend,
				Series:       scored.Series,
				Messages:     result.Messages,
				WordCounts:   chatlog.WordFrequency(result.FullText),
				SenderCounts: chatlog.SenderCounts(result.Messages),
			})

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "=== system ===")
			fmt.Fprintln(out, system)
			fmt.Fprintln(out, "=== user ===")
			fmt.Fprintln(out, user)
			return nil
		},
	}

	cmd.Flags().StringVar(&encodings, "encodings", "", "Comma-separated encodings to try in order")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "TOML catalog with personas and tones")
	cmd.Flags().StringVar(&partner, "partner", "", "Counterpart display name")
	cmd.Flags().StringVar(&persona, "persona", "", "Persona ID")
	cmd.Flags().StringVar(&tone, "tone", "", "Tone ID")
	cmd.Flags().StringVar(&consultation, "consultation", "", "Free-text consultation")

	return cmd
}
