package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/souqdata/areacrawl/internal/checkpoint"
	"github.com/souqdata/areacrawl/internal/clock/system"
)

// newResetCmd creates the 'reset' subcommand: the only path that ever deletes
// the checkpoint artifact. The next crawl starts from an empty record.
func newResetCmd() *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the checkpoint artifact (operator reset)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return fmt.Errorf("refusing to delete progress without --confirm")
			}
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			blobStore, cleanup, err := buildBlobStore(ctx, cfg.Storage, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			saver, err := checkpoint.NewSaver(blobStore, cfg.Storage.CheckpointKey, "", system.New(), logger)
			if err != nil {
				return fmt.Errorf("init checkpoint saver: %w", err)
			}
			if err := saver.Reset(ctx); err != nil {
				return err
			}
			cmd.Printf("checkpoint %s deleted\n", cfg.Storage.CheckpointKey)
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirmed, "confirm", false, "actually delete the checkpoint")
	return cmd
}
