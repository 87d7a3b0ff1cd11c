// Package checkpoint moves the progress record across execution boundaries.
//
// A single static key is used so every execution resumes from the union of
// all prior progress, rather than keeping one artifact per run.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/souqdata/areacrawl/internal/metrics"
	"github.com/souqdata/areacrawl/internal/progress"
	"github.com/souqdata/areacrawl/internal/storage"
)

const contentType = "application/json"

// Saver restores and flushes checkpoint artifacts through a blob store.
// A flush failure is recorded but never propagated as fatal: the in-memory
// record stays authoritative and the next flush retries.
//
// Flushes are serialized: workers in a pool all flush through one Saver, and
// interleaved writes under the static key could land an older snapshot after
// a newer one.
type Saver struct {
	store  storage.BlobStore
	key    string
	runID  string
	clock  progress.Clock
	logger *zap.Logger

	mu  sync.Mutex
	seq uint64
}

// NewSaver builds a Saver for the given transport and checkpoint key.
func NewSaver(store storage.BlobStore, key string, runID string, clock progress.Clock, logger *zap.Logger) (*Saver, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if key == "" {
		return nil, fmt.Errorf("checkpoint key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saver{
		store:  store,
		key:    key,
		runID:  runID,
		clock:  clock,
		logger: logger,
	}, nil
}

// Restore loads the prior record. A missing, truncated, or otherwise
// unreadable artifact yields a fresh empty record: losing a checkpoint means
// re-scraping, not corruption, so forward progress wins over strictness.
func (s *Saver) Restore(ctx context.Context) *progress.Record {
	data, err := s.store.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Info("no prior checkpoint, starting fresh", zap.String("key", s.key))
		} else {
			s.logger.Warn("checkpoint restore failed, starting fresh",
				zap.String("key", s.key), zap.Error(err))
		}
		return progress.NewRecord()
	}
	rec, env, err := progress.Decode(data)
	if err != nil {
		s.logger.Warn("checkpoint artifact unreadable, starting fresh",
			zap.String("key", s.key), zap.Error(err))
		return progress.NewRecord()
	}
	s.mu.Lock()
	s.seq = env.Seq
	s.mu.Unlock()
	s.logger.Info("checkpoint restored",
		zap.String("key", s.key),
		zap.Uint64("seq", env.Seq),
		zap.String("prior_run_id", env.RunID),
		zap.Time("saved_at", env.SavedAt),
		zap.Int("units", len(rec.Units)))
	return rec
}

// Flush encodes the snapshot and writes it under the static key, bumping the
// sequence number on success.
func (s *Saver) Flush(ctx context.Context, rec *progress.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := progress.Encode(rec, s.seq+1, s.runID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if _, err := s.store.Put(ctx, s.key, contentType, data); err != nil {
		metrics.ObserveFlush(false, 0)
		return fmt.Errorf("save checkpoint: %w", err)
	}
	metrics.ObserveFlush(true, len(data))
	s.seq++
	s.logger.Debug("checkpoint flushed",
		zap.Uint64("seq", s.seq), zap.Int("bytes", len(data)))
	return nil
}

// Reset deletes the checkpoint artifact. Only invoked by explicit operator
// action; the crawl itself never deletes progress.
func (s *Saver) Reset(ctx context.Context) error {
	if err := s.store.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	s.mu.Lock()
	s.seq = 0
	s.mu.Unlock()
	return nil
}

// Seq reports the sequence number of the last successful flush or restore.
func (s *Saver) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}
