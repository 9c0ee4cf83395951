package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/stellar-oracle/love-oracle/internal/narrative"
)

func checkKeyCmd() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "check-key",
		Short: "Validate the API key in OPENAI_API_KEY against the model provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := os.Getenv("OPENAI_API_KEY")
			if key == "" {
				return fmt.Errorf("OPENAI_API_KEY is not set")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := narrative.NewOpenAIClient(baseURL, 30*time.Second).ValidateKey(ctx, key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key OK")
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "https://api.openai.com/v1", "Model provider base URL")

	return cmd
}
