package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/souqdata/areacrawl/internal/api"
	"github.com/souqdata/areacrawl/internal/budget"
	"github.com/souqdata/areacrawl/internal/catalog"
	"github.com/souqdata/areacrawl/internal/checkpoint"
	"github.com/souqdata/areacrawl/internal/clock/system"
	"github.com/souqdata/areacrawl/internal/config"
	"github.com/souqdata/areacrawl/internal/engine"
	"github.com/souqdata/areacrawl/internal/fetch"
	collyfetch "github.com/souqdata/areacrawl/internal/fetch/colly"
	"github.com/souqdata/areacrawl/internal/fetch/headless"
	"github.com/souqdata/areacrawl/internal/metrics"
	"github.com/souqdata/areacrawl/internal/progress"
	pubsubpub "github.com/souqdata/areacrawl/internal/publisher/pubsub"
	resultspg "github.com/souqdata/areacrawl/internal/results/postgres"
)

// newCrawlCmd creates the 'crawl' subcommand: one time-boxed execution that
// resumes from the shared checkpoint and flushes it on the way out.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run one time-boxed crawl execution",
		Long: `Restores the checkpoint artifact, plans the remaining work units, and
processes them until the catalog is exhausted or the time budget expires.
Stopping on an exhausted budget with partial progress is a clean exit.`,
		RunE: runCrawl,
	}
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	clock := system.New()
	logger = logger.With(zap.String("run_id", runID))

	provider, err := catalog.NewStatic(cfg.Catalog.Areas)
	if err != nil {
		return fmt.Errorf("build catalog: %w", err)
	}

	blobStore, cleanup, err := buildBlobStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	saver, err := checkpoint.NewSaver(blobStore, cfg.Storage.CheckpointKey, runID, clock, logger)
	if err != nil {
		return fmt.Errorf("init checkpoint saver: %w", err)
	}

	metrics.Init()
	store := progress.NewStore(saver.Restore(ctx), clock)

	fetcher, closeFetcher, err := buildFetcher(cfg, logger)
	if err != nil {
		return err
	}
	defer closeFetcher()

	publisher, closePublisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	ledger, closeLedger, err := buildLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	supervisor := budget.New(cfg.Run.TimeBudget, cfg.Run.GraceTimeout, clock, logger)

	if cfg.Server.Enabled {
		srv := api.NewServer(store, supervisor, runID, logger)
		srv.Start(cfg.Server.Port)
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			if err := srv.Shutdown(sctx); err != nil {
				logger.Warn("shutdown observability server", zap.Error(err))
			}
		}()
	}

	eng := engine.New(
		engine.Config{
			MaxRetries:      cfg.Run.MaxRetries,
			PerUnitTimeout:  cfg.Run.PerUnitTimeout,
			FlushEveryUnits: cfg.Run.FlushEveryUnits,
			FlushInterval:   cfg.Run.FlushInterval,
			Concurrency:     cfg.Run.Concurrency,
			PayloadPrefix:   cfg.Storage.PayloadPrefix,
			Topic:           cfg.PubSub.Topic,
		},
		runID,
		provider,
		store,
		saver,
		fetcher,
		blobStore,
		publisher,
		ledger,
		supervisor,
		clock,
		logger,
	)

	// An OS signal stops the supervisor so the loop winds down through the
	// same grace path as an exhausted budget.
	go func() {
		<-ctx.Done()
		supervisor.Stop()
	}()

	return finishRun(eng.Run(ctx), logger)
}

// finishRun maps the engine outcome to the command's exit status. Only
// startup-fatal errors surface; a signal that cancels in-flight startup calls
// is the same clean interruption as an exhausted budget.
func finishRun(err error, logger *zap.Logger) error {
	if err == nil {
		return nil
	}
	if !engine.IsStartupFatal(err) {
		logger.Info("crawl interrupted before completion", zap.Error(err))
		return nil
	}
	return fmt.Errorf("run crawl: %w", err)
}

func buildFetcher(cfg config.Config, logger *zap.Logger) (fetch.Fetcher, func(), error) {
	noop := func() {}
	probe := collyfetch.New(collyfetch.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.Fetch.RequestTimeout,
		MaxPages:  cfg.Fetch.MaxPages,
		Delay:     cfg.Fetch.PageDelay,
	}, logger)

	if !cfg.Headless.Enabled {
		return probe, noop, nil
	}

	renderer, err := headless.New(headless.Config{
		UserAgent:         cfg.Fetch.UserAgent,
		NavigationTimeout: cfg.Headless.NavTimeout,
		MaxPages:          cfg.Fetch.MaxPages,
	}, logger)
	if err != nil {
		return nil, noop, fmt.Errorf("init headless fetcher: %w", err)
	}
	promoting := &fetch.Promoting{
		Probe:    probe,
		Headless: renderer,
		Logger:   logger,
	}
	return promoting, renderer.Close, nil
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (engine.Publisher, func(), error) {
	noop := func() {}
	if cfg.PubSub.Topic == "" {
		return nil, noop, nil
	}
	client, err := gpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, noop, fmt.Errorf("init pubsub client: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn("close pubsub client", zap.Error(err))
		}
	}
	return pubsubpub.New(client), cleanup, nil
}

func buildLedger(ctx context.Context, cfg config.Config) (engine.Ledger, func(), error) {
	noop := func() {}
	if cfg.DB.DSN == "" {
		return nil, noop, nil
	}
	ledger, err := resultspg.New(ctx, resultspg.Config{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("init results ledger: %w", err)
	}
	return ledger, ledger.Close, nil
}
