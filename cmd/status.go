package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/souqdata/areacrawl/internal/checkpoint"
	"github.com/souqdata/areacrawl/internal/clock/system"
	"github.com/souqdata/areacrawl/internal/progress"
)

// newStatusCmd creates the 'status' subcommand: restore the checkpoint and
// print a progress summary without starting a crawl.
func newStatusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show crawl progress from the checkpoint artifact",
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			rec := saver.Restore(ctx)
			summary := rec.Summarize()

			if asJSON {
				out := struct {
					Seq     uint64                        `json:"seq"`
					Summary progress.Summary              `json:"summary"`
					Units   map[string]progress.UnitState `json:"units"`
				}{Seq: saver.Seq(), Summary: summary, Units: rec.Units}
				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal status: %w", err)
				}
				cmd.Println(string(data))
				return nil
			}

			cmd.Printf("checkpoint seq: %d\n", saver.Seq())
			cmd.Printf("done: %d  failed: %d  pending: %d  in progress: %d\n",
				summary.Done, summary.Failed, summary.Pending, summary.InProgress)
			for id, st := range rec.Units {
				if st.Status == progress.StatusFailed {
					cmd.Printf("failed unit %s (%d attempts): %s\n", id, st.Attempts, st.Reason)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full record as JSON")
	return cmd
}
