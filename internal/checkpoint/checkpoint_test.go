package checkpoint

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/souqdata/areacrawl/internal/progress"
	"github.com/souqdata/areacrawl/internal/storage"
	"github.com/souqdata/areacrawl/internal/storage/memory"
)

const testKey = "checkpoints/progress.json"

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

func newClock() stubClock {
	return stubClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
}

// failingStore wraps the memory store and errors on Put.
type failingStore struct {
	*memory.BlobStore
}

func (f *failingStore) Put(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestNewSaverValidation(t *testing.T) {
	t.Parallel()

	_, err := NewSaver(nil, testKey, "run-1", newClock(), zap.NewNop())
	require.Error(t, err)
	_, err = NewSaver(memory.NewBlobStore(), "", "run-1", newClock(), zap.NewNop())
	require.Error(t, err)
	_, err = NewSaver(memory.NewBlobStore(), testKey, "run-1", newClock(), nil)
	require.NoError(t, err, "nil logger falls back to a no-op logger")
}

func TestRestoreMissingStartsFresh(t *testing.T) {
	t.Parallel()

	s, err := NewSaver(memory.NewBlobStore(), testKey, "run-1", newClock(), zap.NewNop())
	require.NoError(t, err)

	rec := s.Restore(context.Background())
	require.NotNil(t, rec)
	require.Empty(t, rec.Units)
	require.Zero(t, s.Seq())
}

func TestFlushAndRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	ctx := context.Background()

	s1, err := NewSaver(store, testKey, "run-1", newClock(), zap.NewNop())
	require.NoError(t, err)

	rec := progress.NewRecord()
	rec.Units["a"] = progress.UnitState{ID: "a", Status: progress.StatusDone, Attempts: 1}
	rec.Units["b"] = progress.UnitState{ID: "b", Status: progress.StatusInProgress, Attempts: 1}
	require.NoError(t, s1.Flush(ctx, rec))
	require.Equal(t, uint64(1), s1.Seq())
	require.NoError(t, s1.Flush(ctx, rec))
	require.Equal(t, uint64(2), s1.Seq())

	// A later execution restores what the first one saved.
	s2, err := NewSaver(store, testKey, "run-2", newClock(), zap.NewNop())
	require.NoError(t, err)
	restored := s2.Restore(ctx)
	require.Equal(t, rec, restored)
	require.Equal(t, uint64(2), s2.Seq(), "sequence continues from the restored envelope")
}

func TestRestoreCorruptArtifactStartsFresh(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	ctx := context.Background()
	_, err := store.Put(ctx, testKey, "application/json", []byte(`{"version":1,"truncat`))
	require.NoError(t, err)

	s, err := NewSaver(store, testKey, "run-1", newClock(), zap.NewNop())
	require.NoError(t, err)
	rec := s.Restore(ctx)
	require.NotNil(t, rec)
	require.Empty(t, rec.Units)
}

func TestFlushFailureIsReportedNotFatal(t *testing.T) {
	t.Parallel()

	s, err := NewSaver(&failingStore{memory.NewBlobStore()}, testKey, "run-1", newClock(), zap.NewNop())
	require.NoError(t, err)

	err = s.Flush(context.Background(), progress.NewRecord())
	require.Error(t, err)
	require.Zero(t, s.Seq(), "failed flush must not advance the sequence")
}

func TestConcurrentFlushesKeepSequenceMonotonic(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	ctx := context.Background()

	s, err := NewSaver(store, testKey, "run-1", newClock(), zap.NewNop())
	require.NoError(t, err)

	// Pool workers share one Saver; flushes from all of them must serialize.
	const workers = 8
	const flushesPerWorker = 25
	var wg sync.WaitGroup
	errs := make(chan error, workers*flushesPerWorker)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < flushesPerWorker; j++ {
				if err := s.Flush(ctx, progress.NewRecord()); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, uint64(workers*flushesPerWorker), s.Seq())

	data, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	_, env, err := progress.Decode(data)
	require.NoError(t, err)
	require.Equal(t, s.Seq(), env.Seq, "stored artifact carries the latest sequence")
}

func TestReset(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	ctx := context.Background()

	s, err := NewSaver(store, testKey, "run-1", newClock(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx, progress.NewRecord()))
	require.NoError(t, s.Reset(ctx))
	require.Zero(t, s.Seq())

	_, err = store.Get(ctx, testKey)
	require.ErrorIs(t, err, storage.ErrNotFound)
}
