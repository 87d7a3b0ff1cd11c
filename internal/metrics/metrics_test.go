package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Reset collectors for testing purposes.
	unitsTotal = nil
	unitRetriesTotal = nil
	unitDurationSeconds = nil
	flushesTotal = nil
	checkpointBytes = nil
	queueRemaining = nil
	budgetState = nil

	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if unitsTotal == nil || unitRetriesTotal == nil || unitDurationSeconds == nil ||
		flushesTotal == nil || checkpointBytes == nil || queueRemaining == nil || budgetState == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveUnit("done", 1.5)
	if val := testutil.ToFloat64(unitsTotal.WithLabelValues("done")); val != 1 {
		t.Errorf("expected units_total{outcome=done} to be 1, got %f", val)
	}

	ObserveRetry()
	if val := testutil.ToFloat64(unitRetriesTotal); val != 1 {
		t.Errorf("expected retries_total to be 1, got %f", val)
	}

	ObserveFlush(true, 2048)
	ObserveFlush(false, 0)
	if val := testutil.ToFloat64(flushesTotal.WithLabelValues("ok")); val != 1 {
		t.Errorf("expected flushes_total{result=ok} to be 1, got %f", val)
	}
	if val := testutil.ToFloat64(flushesTotal.WithLabelValues("error")); val != 1 {
		t.Errorf("expected flushes_total{result=error} to be 1, got %f", val)
	}
	if val := testutil.ToFloat64(checkpointBytes); val != 2048 {
		t.Errorf("expected checkpoint_bytes to be 2048, got %f", val)
	}

	SetQueueRemaining(7)
	if val := testutil.ToFloat64(queueRemaining); val != 7 {
		t.Errorf("expected queue_remaining to be 7, got %f", val)
	}

	SetBudgetState("grace_window")
	if val := testutil.ToFloat64(budgetState.WithLabelValues("grace_window")); val != 1 {
		t.Errorf("expected budget_state{state=grace_window} to be 1, got %f", val)
	}
	if val := testutil.ToFloat64(budgetState.WithLabelValues("running")); val != 0 {
		t.Errorf("expected budget_state{state=running} to be 0, got %f", val)
	}
}

func TestHelpersAreNilSafe(t *testing.T) {
	// Helpers must be no-ops before Init so library users cannot panic.
	saved := unitsTotal
	savedRetries := unitRetriesTotal
	savedFlushes := flushesTotal
	savedQueue := queueRemaining
	savedState := budgetState
	defer func() {
		unitsTotal = saved
		unitRetriesTotal = savedRetries
		flushesTotal = savedFlushes
		queueRemaining = savedQueue
		budgetState = savedState
	}()

	unitsTotal = nil
	unitRetriesTotal = nil
	flushesTotal = nil
	queueRemaining = nil
	budgetState = nil

	ObserveUnit("done", 1)
	ObserveRetry()
	ObserveFlush(true, 1)
	SetQueueRemaining(1)
	SetBudgetState("running")
}
