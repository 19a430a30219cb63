package ledger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/dcheck/errors"
	"github.com/teranos/dcheck/logger"
)

// Ledger is the durable, append-only log of one run. There is no update or
// delete operation; corrections are supersede markers.
type Ledger struct {
	mu     sync.Mutex
	path   string
	runID  string
	file   *os.File
	state  *State
	broken error // set after a failed append, the file tail is unknown
	logger *zap.SugaredLogger
	now    func() time.Time
}

// Open opens (creating if needed) the ledger at path and replays it.
// A torn final line left by a crash during append is truncated; any other
// damage, or a record belonging to a different run, is an integrity violation.
func Open(path, runID string, log *zap.SugaredLogger) (*Ledger, error) {
	if log == nil {
		log = logger.ComponentLogger("ledger")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.WrapDurability(err, "failed to create ledger directory")
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.WrapDurability(err, "failed to read ledger")
	}

	valid := data
	if n := len(data); n > 0 && data[n-1] != '\n' {
		valid = data[:bytes.LastIndexByte(data, '\n')+1]
		log.Warnw("Truncating torn ledger tail",
			logger.FieldPath, path,
			"bytes", n-len(valid))
		if err := os.Truncate(path, int64(len(valid))); err != nil {
			return nil, errors.WrapDurability(err, "failed to truncate torn ledger tail")
		}
	}

	state, err := Replay(bytes.NewReader(valid))
	if err != nil {
		return nil, errors.Wrapf(err, "ledger %s", path)
	}
	for _, rec := range state.records {
		if rec.RunID != runID {
			return nil, errors.NewIntegrityViolation("ledger %s: record seq %d belongs to run %q, expected %q",
				path, rec.Seq, rec.RunID, runID)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.WrapDurability(err, "failed to open ledger for append")
	}

	log.Debugw("Ledger replayed",
		logger.FieldPath, path,
		logger.FieldRunID, runID,
		logger.FieldCount, len(state.records),
		"completed", len(state.Completed(runID)))

	return &Ledger{
		path:   path,
		runID:  runID,
		file:   f,
		state:  state,
		logger: log,
		now:    time.Now,
	}, nil
}

// Path returns the ledger file path
func (l *Ledger) Path() string {
	return l.path
}

// IsComplete returns the authoritative completed record for a table, if any.
func (l *Ledger) IsComplete(runID, tableID string) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Authoritative(runID, tableID)
}

// Completed returns the authoritative completed records of the run in
// append order.
func (l *Ledger) Completed(runID string) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Completed(runID)
}

// Records returns every record in append order
func (l *Ledger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Records()
}

// Append durably records a completed table. Seq, RunID and a zero
// Timestamp are filled in. Appending the fingerprint already on record is a
// no-op; a different fingerprint for a completed table is an integrity
// violation. I/O failures are durability faults.
func (l *Ledger) Append(runID string, rec Record) error {
	rec.Kind = KindCompleted
	return l.append(runID, rec)
}

// Supersede appends a marker retiring the table's completed record (or every
// record of the run when tableID is empty), so the table runs again.
func (l *Ledger) Supersede(runID, tableID, reason string) error {
	return l.append(runID, Record{Kind: KindSupersede, TableID: tableID, Reason: reason})
}

func (l *Ledger) append(runID string, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.broken != nil {
		return errors.WrapDurability(l.broken, "ledger unusable after failed append")
	}
	if l.file == nil {
		return errors.WrapDurability(os.ErrClosed, "ledger is closed")
	}
	if runID != l.runID {
		return errors.Newf("ledger belongs to run %q, cannot append for %q", l.runID, runID)
	}

	if rec.Kind == KindCompleted {
		if prior, ok := l.state.Authoritative(runID, rec.TableID); ok {
			if prior.Fingerprint == rec.Fingerprint {
				return nil
			}
			return errors.NewIntegrityViolation("table %s already completed in run %s with fingerprint %s, refusing %s",
				rec.TableID, runID, prior.Fingerprint, rec.Fingerprint)
		}
	}

	rec.RunID = runID
	rec.Seq = l.state.lastSeq + 1
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now().UTC()
	}
	if err := l.state.check(rec); err != nil {
		return errors.Wrap(err, "invalid ledger record")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to encode ledger record")
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		l.broken = err
		return errors.WrapDurability(err, "failed to append ledger record")
	}
	if err := l.file.Sync(); err != nil {
		l.broken = err
		return errors.WrapDurability(err, "failed to sync ledger")
	}

	if err := l.state.apply(rec); err != nil {
		return errors.Wrap(err, "ledger state diverged from file")
	}

	l.logger.Debugw("Ledger record appended",
		logger.FieldSeq, rec.Seq,
		"kind", rec.Kind,
		logger.FieldTable, rec.TableID)
	return nil
}

// Close closes the underlying file
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return errors.WrapDurability(err, "failed to close ledger")
	}
	return nil
}
