// Package progress tracks per-unit crawl state and plans resumption across
// time-boxed executions.
package progress

import "time"

// Status represents the lifecycle state of a work unit.
type Status string

// Unit status values persisted in the checkpoint.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// UnitState is the persisted state of one catalog unit.
type UnitState struct {
	// ID matches the catalog unit identifier.
	ID string `json:"id"`
	// Parent carries the catalog grouping for reporting.
	Parent string `json:"parent,omitempty"`
	// Status is the current lifecycle state.
	Status Status `json:"status"`
	// Attempts counts fetch attempts across all executions.
	Attempts int `json:"attempts"`
	// LastAttempt is nil until the unit is first claimed.
	LastAttempt *time.Time `json:"last_attempt,omitempty"`
	// Reason stores the final failure text for failed units.
	Reason string `json:"reason,omitempty"`
	// PayloadURI references where the scraped payload was written.
	PayloadURI string `json:"payload_uri,omitempty"`
}

// Record maps unit identifiers to their state. It is exclusively owned by a
// single execution; other components only ever see snapshots.
type Record struct {
	Units map[string]UnitState `json:"units"`
}

// NewRecord returns an empty Record for a first-ever execution.
func NewRecord() *Record {
	return &Record{Units: make(map[string]UnitState)}
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	out := &Record{Units: make(map[string]UnitState, len(r.Units))}
	for id, st := range r.Units {
		if st.LastAttempt != nil {
			t := *st.LastAttempt
			st.LastAttempt = &t
		}
		out.Units[id] = st
	}
	return out
}

// Summary aggregates unit counts by status.
type Summary struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
}

// Summarize computes status counts over the record.
func (r *Record) Summarize() Summary {
	var s Summary
	for _, st := range r.Units {
		switch st.Status {
		case StatusPending:
			s.Pending++
		case StatusInProgress:
			s.InProgress++
		case StatusDone:
			s.Done++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}
