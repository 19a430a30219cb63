package artifact

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/dcheck/errors"
	"github.com/teranos/dcheck/ledger"
	"github.com/teranos/dcheck/logger"
	"github.com/teranos/dcheck/summary"
)

// CompletionLookup answers whether a table already has an authoritative
// ledger record. *ledger.Ledger satisfies it.
type CompletionLookup interface {
	IsComplete(runID, tableID string) (ledger.Record, bool)
}

// Ref points at a written artifact
type Ref struct {
	Path        string // absolute or root-relative file path
	RelPath     string // relative to the run directory
	Fingerprint string // empty for summaries
}

// Writer writes artifacts under <root>/<run_id>/.
type Writer struct {
	root   string
	lookup CompletionLookup
	logger *zap.SugaredLogger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewWriter creates a writer rooted at root. lookup may be nil when no ledger
// exists yet (dry tooling); the consistency check is then skipped.
func NewWriter(root string, lookup CompletionLookup, log *zap.SugaredLogger) *Writer {
	if log == nil {
		log = logger.ComponentLogger("artifact")
	}
	return &Writer{
		root:   root,
		lookup: lookup,
		logger: log,
		locks:  make(map[string]*sync.Mutex),
	}
}

// RunDir returns the directory for a run
func (w *Writer) RunDir(runID string) string {
	return filepath.Join(w.root, runID)
}

// tableLock serializes writes per table id
func (w *Writer) tableLock(runID, tableID string) *sync.Mutex {
	key := runID + "\x00" + tableID
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.locks[key]
	if !ok {
		l = &sync.Mutex{}
		w.locks[key] = l
	}
	return l
}

// WriteTableResult stamps doc with the schema version and its fingerprint
// and writes it atomically. Rewriting identical content is allowed; content
// that differs from an authoritative ledger record is rejected.
func (w *Writer) WriteTableResult(runID, tableID string, doc TableDocument) (Ref, error) {
	if doc.RunID != "" && doc.RunID != runID {
		return Ref{}, errors.Newf("document run_id %q does not match %q", doc.RunID, runID)
	}
	if doc.TableID != "" && doc.TableID != tableID {
		return Ref{}, errors.Newf("document table_id %q does not match %q", doc.TableID, tableID)
	}
	doc.RunID = runID
	doc.TableID = tableID
	doc.SchemaVersion = SchemaVersion

	fp, err := Fingerprint(doc)
	if err != nil {
		return Ref{}, errors.Wrapf(err, "failed to fingerprint result for %s", tableID)
	}
	doc.Fingerprint = fp

	lock := w.tableLock(runID, tableID)
	lock.Lock()
	defer lock.Unlock()

	if w.lookup != nil {
		if rec, ok := w.lookup.IsComplete(runID, tableID); ok && rec.Fingerprint != fp {
			return Ref{}, errors.NewIntegrityViolation(
				"table %s is already complete in run %s with fingerprint %s; refusing to overwrite with %s",
				tableID, runID, rec.Fingerprint, fp)
		}
	}

	data, err := marshalStable(doc)
	if err != nil {
		return Ref{}, errors.Wrapf(err, "failed to encode result for %s", tableID)
	}

	rel := TablePath(tableID)
	path := filepath.Join(w.RunDir(runID), rel)
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return Ref{}, errors.WrapDurability(err, "failed to write table artifact "+path)
	}

	w.logger.Debugw("Table artifact written",
		logger.FieldTable, tableID,
		logger.FieldPath, path,
		logger.FieldFingerprint, fp)

	return Ref{Path: path, RelPath: rel, Fingerprint: fp}, nil
}

// WriteSummary writes the run summary. Only terminal summaries are accepted.
func (w *Writer) WriteSummary(runID string, s summary.RunSummary) (Ref, error) {
	if s.RunID != runID {
		return Ref{}, errors.Newf("summary run_id %q does not match %q", s.RunID, runID)
	}
	if !s.IsTerminal() {
		return Ref{}, errors.Newf("summary for run %s is not terminal (state %q, %d of %d tasks accounted for)",
			runID, s.State, len(s.Tables)+s.NotRun, s.TotalTasks)
	}

	data, err := marshalStable(s)
	if err != nil {
		return Ref{}, errors.Wrap(err, "failed to encode summary")
	}

	path := filepath.Join(w.RunDir(runID), SummaryFile)
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return Ref{}, errors.WrapDurability(err, "failed to write summary "+path)
	}

	w.logger.Debugw("Summary written",
		logger.FieldRunID, runID,
		logger.FieldPath, path,
		logger.FieldVerdict, s.Verdict)

	return Ref{Path: path, RelPath: SummaryFile}, nil
}

// ReadTableResult decodes a per-table artifact. Numbers keep their literal
// form so the fingerprint can be recomputed exactly.
func ReadTableResult(path string) (*TableDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("artifact %s does not exist", path)
		}
		return nil, errors.Wrapf(err, "failed to read artifact %s", path)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc TableDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrapf(err, "failed to decode artifact %s", path)
	}
	return &doc, nil
}

// Verify checks that the artifact behind a completed ledger record still
// matches it. Any disagreement, including a missing or unreadable artifact,
// is an integrity violation.
func (w *Writer) Verify(runID string, rec ledger.Record) (*TableDocument, error) {
	path := filepath.Join(w.RunDir(runID), rec.ArtifactPath)
	doc, err := ReadTableResult(path)
	if err != nil {
		return nil, errors.WithHint(
			errors.Mark(errors.Wrapf(err, "table %s is recorded complete but its artifact is unusable", rec.TableID), errors.ErrIntegrity),
			errors.IntegrityHint)
	}
	if doc.RunID != runID || doc.TableID != rec.TableID {
		return nil, errors.NewIntegrityViolation("artifact %s belongs to %s/%s, ledger expects %s/%s",
			path, doc.RunID, doc.TableID, runID, rec.TableID)
	}
	fp, err := Fingerprint(*doc)
	if err != nil {
		return nil, errors.NewIntegrityViolation("artifact %s cannot be fingerprinted: %v", path, err)
	}
	if fp != rec.Fingerprint || doc.Fingerprint != rec.Fingerprint {
		return nil, errors.NewIntegrityViolation("artifact %s fingerprint %s does not match ledger record %s (seq %d)",
			path, fp, rec.Fingerprint, rec.Seq)
	}
	return doc, nil
}
