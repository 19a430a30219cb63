package ledger

import (
	"bufio"
	"encoding/json"
	"io"
	"sort"

	"github.com/teranos/dcheck/errors"
)

// maxLineSize bounds a single ledger line
const maxLineSize = 1 << 20

// State is the run state reconstructed from ledger records.
type State struct {
	records       []Record
	authoritative map[string]map[string]Record // run id -> table id -> record
	lastSeq       int64
}

func newState() *State {
	return &State{authoritative: make(map[string]map[string]Record)}
}

// Replay rebuilds state from a ledger stream. It has no side effects.
// Any malformed line or out-of-order sequence number is an integrity
// violation.
func Replay(r io.Reader) (*State, error) {
	state := newState()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, errors.NewIntegrityViolation("ledger line %d: %v", lineNo, err)
		}
		if err := state.apply(rec); err != nil {
			return nil, errors.NewIntegrityViolation("ledger line %d: %v", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewIntegrityViolation("ledger line %d: %v", lineNo+1, err)
	}
	return state, nil
}

// check reports whether rec may follow the current state
func (s *State) check(rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.Seq <= s.lastSeq {
		return errors.Newf("sequence %d does not follow %d", rec.Seq, s.lastSeq)
	}
	if rec.Kind == KindCompleted {
		if prior, ok := s.Authoritative(rec.RunID, rec.TableID); ok && prior.Fingerprint != rec.Fingerprint {
			return errors.Newf("table %s already completed at seq %d with fingerprint %s, got %s",
				rec.TableID, prior.Seq, prior.Fingerprint, rec.Fingerprint)
		}
	}
	return nil
}

func (s *State) apply(rec Record) error {
	if err := s.check(rec); err != nil {
		return err
	}
	s.records = append(s.records, rec)
	s.lastSeq = rec.Seq

	tables := s.authoritative[rec.RunID]
	switch rec.Kind {
	case KindCompleted:
		if _, ok := tables[rec.TableID]; ok {
			// identical duplicate, the first one stays authoritative
			return nil
		}
		if tables == nil {
			tables = make(map[string]Record)
			s.authoritative[rec.RunID] = tables
		}
		tables[rec.TableID] = rec
	case KindSupersede:
		if rec.TableID == "" {
			delete(s.authoritative, rec.RunID)
		} else {
			delete(tables, rec.TableID)
		}
	}
	return nil
}

// Authoritative returns the completed record currently in force for a table.
func (s *State) Authoritative(runID, tableID string) (Record, bool) {
	rec, ok := s.authoritative[runID][tableID]
	return rec, ok
}

// Completed returns the authoritative completed records of a run in
// sequence order.
func (s *State) Completed(runID string) []Record {
	tables := s.authoritative[runID]
	out := make([]Record, 0, len(tables))
	for _, rec := range tables {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Records returns every replayed record in append order
func (s *State) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// LastSeq returns the highest sequence number seen
func (s *State) LastSeq() int64 {
	return s.lastSeq
}
