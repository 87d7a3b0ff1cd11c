package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func TestClaimTransitions(t *testing.T) {
	t.Parallel()

	s := NewStore(nil, newFakeClock())

	require.True(t, s.Claim("a", "p"), "absent unit should be claimable")
	require.False(t, s.Claim("a", "p"), "in-progress unit must not be claimable")

	st, ok := s.Get("a")
	require.True(t, ok)
	require.Equal(t, StatusInProgress, st.Status)
	require.Equal(t, "p", st.Parent)
	require.NotNil(t, st.LastAttempt)
	require.Zero(t, st.Attempts, "claim alone does not count an attempt")

	s.MarkDone("a", "memory://payloads/a.json")
	require.False(t, s.Claim("a", "p"), "done unit must not be claimable")

	s.MarkFailed("b", "boom")
	require.False(t, s.Claim("b", ""), "failed unit must not be claimable")
	s.Requeue("b")
	require.True(t, s.Claim("b", ""), "requeued unit is claimable again")
}

func TestClaimIsExclusive(t *testing.T) {
	t.Parallel()

	s := NewStore(nil, newFakeClock())

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	claimed := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Claim("contested", "") {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, claimed, "exactly one worker may win the claim")
}

func TestAttemptsAccumulateAcrossExecutions(t *testing.T) {
	t.Parallel()

	s := NewStore(nil, newFakeClock())
	require.True(t, s.Claim("d", ""))
	require.Equal(t, 1, s.AddAttempt("d"))
	require.Equal(t, 2, s.AddAttempt("d"))
	s.MarkFailed("d", "timeout")

	// Next execution restores the snapshot and retries the unit.
	s2 := NewStore(s.Snapshot(), newFakeClock())
	s2.Requeue("d")
	require.True(t, s2.Claim("d", ""))
	require.Equal(t, 3, s2.AddAttempt("d"), "attempt counter spans executions")
}

func TestMarkDoneClearsFailure(t *testing.T) {
	t.Parallel()

	s := NewStore(nil, newFakeClock())
	require.True(t, s.Claim("a", ""))
	s.MarkFailed("a", "transient blip")
	s.Requeue("a")
	require.True(t, s.Claim("a", ""))
	s.MarkDone("a", "memory://payloads/a.json")

	st, _ := s.Get("a")
	require.Equal(t, StatusDone, st.Status)
	require.Empty(t, st.Reason)
	require.Equal(t, "memory://payloads/a.json", st.PayloadURI)
}

func TestReclaimOnlyTouchesInProgress(t *testing.T) {
	t.Parallel()

	s := NewStore(nil, newFakeClock())
	require.True(t, s.Claim("a", ""))
	require.Equal(t, 1, s.AddAttempt("a"))
	s.Reclaim("a")

	st, _ := s.Get("a")
	require.Equal(t, StatusPending, st.Status)
	require.Equal(t, 1, st.Attempts, "reclaim preserves attempts")

	s.MarkDone("b", "uri")
	s.Reclaim("b")
	st, _ = s.Get("b")
	require.Equal(t, StatusDone, st.Status, "reclaim must not disturb a done unit")

	s.Reclaim("missing")
	_, ok := s.Get("missing")
	require.False(t, ok, "reclaim must not invent units")
}

func TestSnapshotIsIsolated(t *testing.T) {
	t.Parallel()

	s := NewStore(nil, newFakeClock())
	require.True(t, s.Claim("a", ""))
	snap := s.Snapshot()
	s.MarkDone("a", "uri")

	require.Equal(t, StatusInProgress, snap.Units["a"].Status,
		"snapshot must not observe later mutations")

	snap.Units["a"] = UnitState{ID: "a", Status: StatusFailed}
	st, _ := s.Get("a")
	require.Equal(t, StatusDone, st.Status, "mutating a snapshot must not leak back")
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	s := NewStore(nil, newFakeClock())
	require.True(t, s.Claim("a", ""))
	s.MarkDone("a", "uri")
	require.True(t, s.Claim("b", ""))
	s.MarkFailed("c", "nope")
	require.True(t, s.Claim("d", ""))
	s.Reclaim("d")

	sum := s.Summarize()
	require.Equal(t, 1, sum.Done)
	require.Equal(t, 1, sum.InProgress)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, 1, sum.Pending)
}
