package cmd

import (
	"context"
	"fmt"

	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/souqdata/areacrawl/internal/config"
	"github.com/souqdata/areacrawl/internal/storage"
	"github.com/souqdata/areacrawl/internal/storage/gcs"
	"github.com/souqdata/areacrawl/internal/storage/local"
	"github.com/souqdata/areacrawl/internal/storage/memory"
)

// buildBlobStore constructs the configured blob backend. The returned cleanup
// releases any underlying client and is safe to call once.
func buildBlobStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.BlobStore, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, noop, fmt.Errorf("init local blob store: %w", err)
		}
		return store, noop, nil
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("init gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("init gcs blob store: %w", err)
		}
		cleanup := func() {
			if err := client.Close(); err != nil {
				logger.Warn("close gcs client", zap.Error(err))
			}
		}
		return store, cleanup, nil
	case "memory":
		return memory.NewBlobStore(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
