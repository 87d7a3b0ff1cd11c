// Package cmd defines and implements the CLI commands for the areacrawl
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/souqdata/areacrawl/internal/config"
	"github.com/souqdata/areacrawl/internal/logging"

	"go.uber.org/zap"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "areacrawl",
		Short: "A checkpointed area-listing crawler that survives time-boxed runs.",
		Long: `areacrawl scrapes delivery-area listing pages inside fixed-duration
execution windows imposed by an external scheduler. No single window is long
enough to finish the crawl, so progress is checkpointed to a durable artifact
and every new execution resumes exactly where the previous one left off.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./areacrawl.yaml)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newResetCmd())

	return cmd
}

// loadConfig resolves the config path and builds the Config plus a logger.
func loadConfig() (config.Config, *zap.Logger, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("areacrawl.yaml"); err == nil {
			path = "areacrawl.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// Execute is the main entry point. Startup failures exit non-zero; a crawl
// stopped by the time budget with partial progress exits zero.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
