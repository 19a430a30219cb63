// Package artifact persists per-table results and the run summary as JSON
// documents. Every write is atomic: readers see the old file or the new one,
// never a partial one.
package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/teranos/dcheck/check"
	"github.com/teranos/dcheck/redact"
)

// SchemaVersion of the per-table artifact
const SchemaVersion = 1

// TableDocument is the per-table artifact.
type TableDocument struct {
	SchemaVersion int                  `json:"schema_version"`
	RunID         string               `json:"run_id"`
	TableID       string               `json:"table_id"`
	Severity      check.Severity       `json:"severity"`
	Modules       []string             `json:"modules"`
	Results       []check.ModuleResult `json:"results"`
	Redaction     redact.Report        `json:"redaction"`
	Fingerprint   string               `json:"fingerprint"`
	Timing        Timing               `json:"timing"`
}

// Timing is excluded from the fingerprint
type Timing struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	ModulesMS  map[string]int64 `json:"modules_ms,omitempty"`
}

// fingerprinted is the part of a TableDocument that identifies its content
type fingerprinted struct {
	TableID  string               `json:"table_id"`
	Severity check.Severity       `json:"severity"`
	Modules  []string             `json:"modules"`
	Results  []check.ModuleResult `json:"results"`
}

// Fingerprint returns "sha256:<hex>" over the canonical JSON of the table id,
// severity, module list and (already sanitized) module results.
func Fingerprint(doc TableDocument) (string, error) {
	data, err := canonicalJSON(fingerprinted{
		TableID:  doc.TableID,
		Severity: doc.Severity,
		Modules:  doc.Modules,
		Results:  doc.Results,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// canonicalJSON encodes v so that values decoded from disk and values built
// in memory produce the same bytes: struct field order is replaced by sorted
// object keys and numbers keep their literal form.
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}

// marshalStable renders an artifact: indented, trailing newline
func marshalStable(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
