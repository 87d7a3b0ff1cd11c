package progress

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// codecVersion tags the envelope layout. Bump on incompatible changes;
// readers treat unknown versions as an absent checkpoint.
const codecVersion = 1

// ErrDecode signals a missing, truncated, corrupt, or incompatible
// checkpoint. Callers recover by starting from an empty record.
var ErrDecode = errors.New("checkpoint decode")

// Envelope is the serialized checkpoint artifact: the record plus a
// monotonic sequence number and a content fingerprint.
type Envelope struct {
	Version     int             `json:"version"`
	Seq         uint64          `json:"seq"`
	RunID       string          `json:"run_id"`
	SavedAt     time.Time       `json:"saved_at"`
	Fingerprint string          `json:"fingerprint"`
	Record      json.RawMessage `json:"record"`
}

// Encode serializes the record into a fingerprinted envelope.
func Encode(rec *Record, seq uint64, runID string, savedAt time.Time) ([]byte, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	env := Envelope{
		Version:     codecVersion,
		Seq:         seq,
		RunID:       runID,
		SavedAt:     savedAt.UTC(),
		Fingerprint: fingerprint(body),
		Record:      body,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// Decode validates and deserializes a checkpoint artifact. Any corruption
// (truncated bytes, fingerprint mismatch, unknown version) yields ErrDecode,
// never a silently wrong record.
func Decode(data []byte) (*Record, Envelope, error) {
	var env Envelope
	if len(data) == 0 {
		return nil, env, fmt.Errorf("%w: empty artifact", ErrDecode)
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, env, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if env.Version != codecVersion {
		return nil, env, fmt.Errorf("%w: unsupported version %d", ErrDecode, env.Version)
	}
	if got := fingerprint(env.Record); got != env.Fingerprint {
		return nil, env, fmt.Errorf("%w: fingerprint mismatch", ErrDecode)
	}
	rec := NewRecord()
	if err := json.Unmarshal(env.Record, rec); err != nil {
		return nil, env, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if rec.Units == nil {
		rec.Units = make(map[string]UnitState)
	}
	return rec, env, nil
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
