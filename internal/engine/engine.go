// Package engine drives work units through the fetch collaborator while the
// time budget allows, checkpointing progress at a configured cadence and
// unconditionally on every exit path.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/souqdata/areacrawl/internal/budget"
	"github.com/souqdata/areacrawl/internal/catalog"
	"github.com/souqdata/areacrawl/internal/checkpoint"
	"github.com/souqdata/areacrawl/internal/fetch"
	"github.com/souqdata/areacrawl/internal/metrics"
	"github.com/souqdata/areacrawl/internal/progress"
	"github.com/souqdata/areacrawl/internal/storage"
)

// Publisher pushes per-unit completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Ledger records completed units in a relational store for reporting.
// The checkpoint artifact remains the source of truth for resumption.
type Ledger interface {
	RecordUnit(ctx context.Context, result UnitResult) error
}

// UnitResult is the completion row handed to the Ledger.
type UnitResult struct {
	UnitID       string
	Parent       string
	RunID        string
	PayloadURI   string
	Vendors      int
	Pages        int
	UsedHeadless bool
	FetchedAt    time.Time
	DurationMs   int64
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Config controls engine behavior.
type Config struct {
	// MaxRetries caps total fetch attempts per unit, across executions.
	MaxRetries int
	// PerUnitTimeout bounds one unit's fetch including its retries' waits.
	PerUnitTimeout time.Duration
	// FlushEveryUnits triggers a checkpoint flush after this many
	// completed units; FlushInterval triggers on elapsed time. Whichever
	// comes first wins.
	FlushEveryUnits int
	FlushInterval   time.Duration
	// Concurrency sizes the worker pool. 1 means strictly sequential.
	Concurrency int
	// PayloadPrefix is the blob key prefix for per-unit payload documents.
	PayloadPrefix string
	// Topic, when set together with a Publisher, enables completion events.
	Topic string
}

func (c *Config) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.PerUnitTimeout <= 0 {
		c.PerUnitTimeout = 5 * time.Minute
	}
	if c.FlushEveryUnits <= 0 {
		c.FlushEveryUnits = 5
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 2 * time.Minute
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.PayloadPrefix == "" {
		c.PayloadPrefix = "payloads"
	}
}

// Engine is the execution loop for one time-boxed run.
type Engine struct {
	cfg        Config
	runID      string
	provider   catalog.Provider
	store      *progress.Store
	saver      *checkpoint.Saver
	fetcher    fetch.Fetcher
	payloads   storage.BlobStore
	publisher  Publisher
	ledger     Ledger
	supervisor *budget.Supervisor
	retry      *ExponentialRetryPolicy
	clock      Clock
	logger     *zap.Logger

	flushMu       sync.Mutex
	sinceFlush    int
	lastFlush     time.Time
	flushFailures int
}

// New constructs an Engine. Publisher and Ledger are optional.
func New(
	cfg Config,
	runID string,
	provider catalog.Provider,
	store *progress.Store,
	saver *checkpoint.Saver,
	fetcher fetch.Fetcher,
	payloads storage.BlobStore,
	publisher Publisher,
	ledger Ledger,
	supervisor *budget.Supervisor,
	clock Clock,
	logger *zap.Logger,
) *Engine {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:        cfg,
		runID:      runID,
		provider:   provider,
		store:      store,
		saver:      saver,
		fetcher:    fetcher,
		payloads:   payloads,
		publisher:  publisher,
		ledger:     ledger,
		supervisor: supervisor,
		retry:      NewExponentialRetryPolicy(),
		clock:      clock,
		logger:     logger,
	}
}

// Run executes one crawl window. It returns an error only for unrecoverable
// startup failures; stopping on an exhausted time budget with partial
// progress is a clean exit.
func (e *Engine) Run(ctx context.Context) error {
	units, err := e.provider.List(ctx)
	if err != nil {
		return fmt.Errorf("list catalog: %w", err)
	}
	if len(units) == 0 {
		return catalog.ErrEmpty
	}

	queue := e.reconcile(units)
	summary := e.store.Summarize()
	e.logger.Info("execution planned",
		zap.String("run_id", e.runID),
		zap.Int("catalog", len(units)),
		zap.Int("queued", len(queue)),
		zap.Int("done", summary.Done),
		zap.Int("failed", summary.Failed))
	metrics.SetQueueRemaining(len(queue))

	e.supervisor.Start()
	metrics.SetBudgetState(e.supervisor.State().String())
	e.flushMu.Lock()
	e.lastFlush = e.clock.Now()
	e.flushMu.Unlock()

	// The final flush runs on every exit path, including panics unwinding
	// through Run, so an interrupted window still leaves a usable artifact.
	defer e.finalFlush()

	if len(queue) == 0 {
		e.logger.Info("nothing to do, crawl already complete")
		e.supervisor.Stop()
		return nil
	}

	e.drive(ctx, queue)

	e.supervisor.Stop()
	metrics.SetBudgetState(e.supervisor.State().String())
	final := e.store.Summarize()
	e.logger.Info("execution finished",
		zap.String("run_id", e.runID),
		zap.Duration("elapsed", e.supervisor.Elapsed()),
		zap.Int("done", final.Done),
		zap.Int("failed", final.Failed),
		zap.Int("pending", final.Pending),
		zap.Int("in_progress", final.InProgress))
	return nil
}

// reconcile applies the resumption plan to the store: dangling InProgress
// units return to Pending at the front of the queue, retryable Failed units
// re-enter at the back.
func (e *Engine) reconcile(units []catalog.Unit) []catalog.Unit {
	rec := e.store.Snapshot()
	queue := progress.Plan(units, rec, e.cfg.MaxRetries)
	for _, u := range queue {
		st, ok := rec.Units[u.ID]
		if !ok {
			continue
		}
		switch st.Status {
		case progress.StatusInProgress:
			e.logger.Info("reclaiming unit left in progress by a prior run",
				zap.String("unit", u.ID))
			e.store.Reclaim(u.ID)
		case progress.StatusFailed:
			e.logger.Info("requeuing failed unit below retry cap",
				zap.String("unit", u.ID),
				zap.Int("attempts", st.Attempts))
			e.store.Requeue(u.ID)
		}
	}
	return queue
}

// drive feeds the queue to a bounded worker pool and blocks until the queue
// drains or the supervisor calls a stop.
func (e *Engine) drive(ctx context.Context, queue []catalog.Unit) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-e.supervisor.HardStop():
			cancel()
		case <-runCtx.Done():
		}
	}()

	unitCh := make(chan catalog.Unit)
	go func() {
		defer close(unitCh)
		for i, u := range queue {
			metrics.SetQueueRemaining(len(queue) - i)
			select {
			case <-e.supervisor.SoftStop():
				e.logger.Info("grace window open, no new units",
					zap.Int("remaining", len(queue)-i))
				return
			case <-runCtx.Done():
				return
			case unitCh <- u:
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range unitCh {
				if e.supervisor.ShouldStop() {
					continue
				}
				e.processUnit(runCtx, u)
				e.maybeFlush(runCtx)
			}
		}()
	}
	wg.Wait()
	metrics.SetQueueRemaining(0)
}

// processUnit runs one unit through claim, fetch with bounded retries, and a
// terminal Done/Failed mark. A unit interrupted by shutdown stays InProgress
// for the next execution's planner to reclaim.
func (e *Engine) processUnit(ctx context.Context, u catalog.Unit) {
	if !e.store.Claim(u.ID, u.Parent) {
		// Another worker holds it, or a flush raced a replan; never
		// fetch the same unit twice.
		e.logger.Debug("claim refused", zap.String("unit", u.ID))
		return
	}

	unitCtx, cancel := context.WithTimeout(ctx, e.cfg.PerUnitTimeout)
	defer cancel()

	start := e.clock.Now()
	for {
		attempts := e.store.AddAttempt(u.ID)
		payload, err := e.fetcher.Fetch(unitCtx, u)
		if err == nil {
			e.completeUnit(ctx, u, payload, start)
			return
		}

		if ctx.Err() != nil {
			// Shutdown mid-unit: leave the unit InProgress so the next
			// execution retries it first.
			e.logger.Warn("unit interrupted by shutdown",
				zap.String("unit", u.ID), zap.Error(err))
			return
		}

		if !fetch.IsTransient(err) {
			e.failUnit(u, attempts, start, err)
			return
		}

		metrics.ObserveRetry()
		if attempts >= e.cfg.MaxRetries {
			e.failUnit(u, attempts, start, err)
			return
		}
		e.logger.Warn("transient unit failure, backing off",
			zap.String("unit", u.ID),
			zap.Int("attempt", attempts),
			zap.Error(err))
		select {
		case <-unitCtx.Done():
			if ctx.Err() != nil {
				return
			}
			e.failUnit(u, attempts, start, unitCtx.Err())
			return
		case <-time.After(e.retry.Backoff(attempts)):
		}
	}
}

func (e *Engine) completeUnit(ctx context.Context, u catalog.Unit, payload fetch.Payload, start time.Time) {
	uri, err := e.persistPayload(ctx, u, payload)
	if err != nil {
		// Payload persistence failures are transient from the unit's
		// point of view; without the payload the unit is not done.
		e.logger.Error("persist payload failed",
			zap.String("unit", u.ID), zap.Error(err))
		e.failUnit(u, e.cfg.MaxRetries, start, err)
		return
	}
	e.store.MarkDone(u.ID, uri)
	elapsed := e.clock.Now().Sub(start)
	metrics.ObserveUnit("done", elapsed.Seconds())
	e.logger.Info("unit done",
		zap.String("unit", u.ID),
		zap.String("payload_uri", uri),
		zap.Int("vendors", len(payload.Vendors)),
		zap.Int("pages", payload.Pages),
		zap.Bool("headless", payload.UsedHeadless),
		zap.Duration("took", elapsed))

	e.publishResult(ctx, u, payload, uri)
	e.recordResult(ctx, u, payload, uri)
}

func (e *Engine) failUnit(u catalog.Unit, attempts int, start time.Time, err error) {
	e.store.MarkFailed(u.ID, err.Error())
	metrics.ObserveUnit("failed", e.clock.Now().Sub(start).Seconds())
	e.logger.Error("unit failed",
		zap.String("unit", u.ID),
		zap.Int("attempts", attempts),
		zap.Error(err))
}

func (e *Engine) persistPayload(ctx context.Context, u catalog.Unit, payload fetch.Payload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	key := fmt.Sprintf("%s/%s.json", e.cfg.PayloadPrefix, u.ID)
	uri, err := e.payloads.Put(ctx, key, "application/json", data)
	if err != nil {
		return "", fmt.Errorf("put payload: %w", err)
	}
	return uri, nil
}

func (e *Engine) publishResult(ctx context.Context, u catalog.Unit, payload fetch.Payload, uri string) {
	if e.publisher == nil || e.cfg.Topic == "" {
		return
	}
	event := map[string]any{
		"run_id":      e.runID,
		"unit_id":     u.ID,
		"parent":      u.Parent,
		"payload_uri": uri,
		"vendors":     len(payload.Vendors),
		"pages":       payload.Pages,
		"headless":    payload.UsedHeadless,
		"timestamp":   e.clock.Now().Format(time.RFC3339),
	}
	if _, err := e.publisher.Publish(ctx, e.cfg.Topic, event); err != nil {
		e.logger.Warn("publish completion event failed",
			zap.String("unit", u.ID), zap.Error(err))
	}
}

func (e *Engine) recordResult(ctx context.Context, u catalog.Unit, payload fetch.Payload, uri string) {
	if e.ledger == nil {
		return
	}
	result := UnitResult{
		UnitID:       u.ID,
		Parent:       u.Parent,
		RunID:        e.runID,
		PayloadURI:   uri,
		Vendors:      len(payload.Vendors),
		Pages:        payload.Pages,
		UsedHeadless: payload.UsedHeadless,
		FetchedAt:    payload.FetchedAt,
		DurationMs:   payload.DurationMs,
	}
	if err := e.ledger.RecordUnit(ctx, result); err != nil {
		e.logger.Warn("ledger record failed",
			zap.String("unit", u.ID), zap.Error(err))
	}
}

// maybeFlush checkpoints when the configured cadence is due. Flush errors
// never abort the loop; the in-memory record stays authoritative and the
// next cadence (or shutdown) retries.
func (e *Engine) maybeFlush(ctx context.Context) {
	e.flushMu.Lock()
	e.sinceFlush++
	due := e.sinceFlush >= e.cfg.FlushEveryUnits ||
		e.clock.Now().Sub(e.lastFlush) >= e.cfg.FlushInterval
	if due {
		e.sinceFlush = 0
		e.lastFlush = e.clock.Now()
	}
	e.flushMu.Unlock()
	if !due {
		return
	}
	if err := e.saver.Flush(ctx, e.store.Snapshot()); err != nil {
		e.flushMu.Lock()
		e.flushFailures++
		e.flushMu.Unlock()
		e.logger.Warn("checkpoint flush failed, will retry at next cadence",
			zap.Error(err))
	}
}

// finalFlush writes the checkpoint one last time with a fresh context, since
// the run context may already be canceled by the time we get here.
func (e *Engine) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.saver.Flush(ctx, e.store.Snapshot()); err != nil {
		e.logger.Error("final checkpoint flush failed", zap.Error(err))
		return
	}
	e.logger.Info("final checkpoint flushed", zap.Uint64("seq", e.saver.Seq()))
}

// FlushFailures reports how many periodic flushes failed, for tests and the
// status surface.
func (e *Engine) FlushFailures() int {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	return e.flushFailures
}

// IsStartupFatal reports whether an error from Run means the execution could
// not begin at all (exit non-zero) rather than a mid-crawl condition.
func IsStartupFatal(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}
