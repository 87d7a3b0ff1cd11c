package progress

import (
	"sync"
	"time"
)

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Store owns the in-memory Record for one execution. All mutations are
// synchronous; durability is the caller's concern via Snapshot plus an
// explicit flush. Safe for concurrent use by a bounded worker pool.
type Store struct {
	mu    sync.Mutex
	rec   *Record
	clock Clock
}

// NewStore wraps a restored (or fresh) record.
func NewStore(rec *Record, clock Clock) *Store {
	if rec == nil {
		rec = NewRecord()
	}
	if rec.Units == nil {
		rec.Units = make(map[string]UnitState)
	}
	return &Store{rec: rec, clock: clock}
}

// Get returns the state for a unit, if any.
func (s *Store) Get(unitID string) (UnitState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rec.Units[unitID]
	return st, ok
}

// Claim moves a unit from Pending (or absent) to InProgress. It is a
// compare-and-set transition: only one caller can claim a given unit, so a
// pool of workers never fetches the same unit twice.
func (s *Store) Claim(unitID, parent string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rec.Units[unitID]
	if ok && st.Status != StatusPending {
		return false
	}
	now := s.clock.Now()
	st.ID = unitID
	st.Parent = parent
	st.Status = StatusInProgress
	st.LastAttempt = &now
	s.rec.Units[unitID] = st
	return true
}

// AddAttempt increments the unit's attempt counter and returns the total.
// The counter spans executions, so the retry cap holds across restarts.
func (s *Store) AddAttempt(unitID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.rec.Units[unitID]
	now := s.clock.Now()
	st.ID = unitID
	st.Attempts++
	st.LastAttempt = &now
	s.rec.Units[unitID] = st
	return st.Attempts
}

// MarkDone records successful completion and the payload reference.
func (s *Store) MarkDone(unitID, payloadURI string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.rec.Units[unitID]
	st.ID = unitID
	st.Status = StatusDone
	st.Reason = ""
	st.PayloadURI = payloadURI
	s.rec.Units[unitID] = st
}

// MarkFailed records a terminal failure with its reason.
func (s *Store) MarkFailed(unitID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.rec.Units[unitID]
	st.ID = unitID
	st.Status = StatusFailed
	st.Reason = reason
	s.rec.Units[unitID] = st
}

// Reclaim resets a dangling InProgress unit (left by an interrupted prior
// execution) back to Pending. Attempts are preserved.
func (s *Store) Reclaim(unitID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rec.Units[unitID]
	if !ok || st.Status != StatusInProgress {
		return
	}
	st.Status = StatusPending
	s.rec.Units[unitID] = st
}

// Requeue returns a Failed unit below the retry cap to Pending for another
// round of attempts. Attempts are preserved.
func (s *Store) Requeue(unitID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rec.Units[unitID]
	if !ok || st.Status != StatusFailed {
		return
	}
	st.Status = StatusPending
	s.rec.Units[unitID] = st
}

// Snapshot returns a point-in-time deep copy of the record.
func (s *Store) Snapshot() *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Clone()
}

// Summarize returns current status counts.
func (s *Store) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Summarize()
}
