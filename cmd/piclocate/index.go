package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newIndexCmd() *cobra.Command {
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Indexing operations",
	}
	indexCmd.AddCommand(newIndexRunCmd())
	return indexCmd
}

func newIndexRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a one-shot indexing pass over the configured source root",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, version)
			if err != nil {
				return err
			}
			defer a.db.Close()
			defer a.jwks.Close()

			a.logger.Info("starting indexing run", zap.String("root_folder_id", a.cfg.Source.RootFolderID))
			return a.pipeline.Run(ctx, a.cfg.Source.RootFolderID)
		},
	}
}
