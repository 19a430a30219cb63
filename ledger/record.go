// Package ledger is the append-only record of completed table tasks. It is
// the single source of truth for resume: the runner's in-memory progress can
// always be rebuilt by replaying it.
package ledger

import (
	"encoding/json"
	"time"

	"github.com/teranos/dcheck/check"
	"github.com/teranos/dcheck/errors"
)

// FileName is the ledger's name inside a run directory
const FileName = "ledger.jsonl"

// Kind distinguishes ledger record types
type Kind string

const (
	// KindCompleted records that a table's artifact is durable
	KindCompleted Kind = "completed"
	// KindSupersede retires earlier completed records without editing them
	KindSupersede Kind = "supersede"
)

// Record is one ledger line.
//
// For KindSupersede an empty TableID retires every earlier record of the run.
type Record struct {
	Seq          int64
	Kind         Kind
	RunID        string
	TableID      string
	Severity     check.Severity
	Fingerprint  string
	ArtifactPath string // relative to the run directory
	Reason       string
	Timestamp    time.Time
}

// line is the JSON form of a Record. Severity is kept as text so supersede
// markers carry none.
type line struct {
	Seq          int64     `json:"seq"`
	Kind         Kind      `json:"kind"`
	RunID        string    `json:"run_id"`
	TableID      string    `json:"table_id,omitempty"`
	Severity     string    `json:"severity,omitempty"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	ArtifactPath string    `json:"artifact,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"ts"`
}

// MarshalJSON implements json.Marshaler
func (r Record) MarshalJSON() ([]byte, error) {
	l := line{
		Seq:          r.Seq,
		Kind:         r.Kind,
		RunID:        r.RunID,
		TableID:      r.TableID,
		Fingerprint:  r.Fingerprint,
		ArtifactPath: r.ArtifactPath,
		Reason:       r.Reason,
		Timestamp:    r.Timestamp.UTC(),
	}
	if r.Kind == KindCompleted {
		l.Severity = r.Severity.String()
	}
	return json.Marshal(l)
}

// UnmarshalJSON implements json.Unmarshaler
func (r *Record) UnmarshalJSON(data []byte) error {
	var l line
	if err := json.Unmarshal(data, &l); err != nil {
		return err
	}
	*r = Record{
		Seq:          l.Seq,
		Kind:         l.Kind,
		RunID:        l.RunID,
		TableID:      l.TableID,
		Fingerprint:  l.Fingerprint,
		ArtifactPath: l.ArtifactPath,
		Reason:       l.Reason,
		Timestamp:    l.Timestamp,
	}
	if l.Severity != "" {
		sev, err := check.ParseSeverity(l.Severity)
		if err != nil {
			return err
		}
		r.Severity = sev
	}
	return nil
}

// Validate checks the fields required for the record's kind
func (r Record) Validate() error {
	if r.Seq <= 0 {
		return errors.Newf("seq must be > 0, got %d", r.Seq)
	}
	if r.RunID == "" {
		return errors.New("run_id is required")
	}
	switch r.Kind {
	case KindCompleted:
		if r.TableID == "" {
			return errors.New("completed record requires table_id")
		}
		if r.Fingerprint == "" {
			return errors.New("completed record requires fingerprint")
		}
		if !r.Severity.Valid() {
			return errors.Newf("invalid severity %d", int(r.Severity))
		}
	case KindSupersede:
	default:
		return errors.Newf("unknown record kind %q", r.Kind)
	}
	return nil
}
