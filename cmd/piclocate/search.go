package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var lang string
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one search query and print the ranked results as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, version)
			if err != nil {
				return err
			}
			defer a.db.Close()
			defer a.jwks.Close()

			result, err := a.engine.Search(ctx, args[0], lang, limit)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode results: %w", err)
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&lang, "lang", "", "query language: 'en', 'he', or 'auto' (empty auto-detects)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results to return (0 uses the configured default)")
	return cmd
}
