// Package summary folds ledger records into the run-level summary.
package summary

import (
	"sort"
	"time"

	"github.com/teranos/dcheck/audit"
	"github.com/teranos/dcheck/check"
	"github.com/teranos/dcheck/ledger"
)

// SchemaVersion of the summary artifact
const SchemaVersion = 1

// State is the terminal run state
type State string

const (
	StateFinished State = "finished"
	StateAborted  State = "aborted"
)

// Verdict is the run-level policy result
type Verdict string

const (
	VerdictPassed Verdict = "passed"
	VerdictFailed Verdict = "failed"
)

// Abort reasons
const (
	AbortPolicy    = "fail_on"
	AbortCancelled = "cancelled"
	AbortFatal     = "fatal"
)

// TableEntry indexes one completed table
type TableEntry struct {
	TableID     string         `json:"table_id"`
	Severity    check.Severity `json:"severity"`
	Artifact    string         `json:"artifact"`
	Fingerprint string         `json:"fingerprint"`
}

// RunSummary is the summary artifact
type RunSummary struct {
	SchemaVersion   int             `json:"schema_version"`
	RunID           string          `json:"run_id"`
	State           State           `json:"state"`
	Verdict         Verdict         `json:"verdict"`
	FailOn          []string        `json:"fail_on"`
	ContinueOnError bool            `json:"continue_on_error"`
	AllowRawOutput  bool            `json:"allow_pii_output"`
	TotalTasks      int             `json:"total_tasks"`
	Counts          map[string]int  `json:"counts"`
	Passed          int             `json:"passed"`
	Failed          int             `json:"failed"`
	Executed        int             `json:"executed"`
	AlreadyDone     int             `json:"already_done"`
	NotRun          int             `json:"not_run"`
	AbortReason     string          `json:"abort_reason,omitempty"`
	AbortedAfter    string          `json:"aborted_after,omitempty"`
	Error           string          `json:"error,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	Tables          []TableEntry    `json:"tables"`
	Audit           *audit.Metadata `json:"audit,omitempty"`
}

// Options carries what the ledger cannot know: the plan and how this attempt
// ended.
type Options struct {
	PlanOrder       []string // table ids in plan order; empty = every record, sorted by id
	FailOn          check.SeveritySet
	ContinueOnError bool
	AllowRawOutput  bool

	State        State
	AbortReason  string
	AbortedAfter string
	Error        string
	Executed     int
	AlreadyDone  int
	StartedAt    time.Time
	FinishedAt   time.Time
	Audit        *audit.Metadata
}

// Aggregate folds the authoritative completed records of a run into a
// summary. The result does not depend on the order of records.
func Aggregate(runID string, records []ledger.Record, opts Options) RunSummary {
	position := make(map[string]int, len(opts.PlanOrder))
	for i, id := range opts.PlanOrder {
		position[id] = i
	}

	byTable := make(map[string]ledger.Record, len(records))
	for _, rec := range records {
		if rec.Kind != ledger.KindCompleted || rec.RunID != runID {
			continue
		}
		if len(position) > 0 {
			if _, inPlan := position[rec.TableID]; !inPlan {
				continue
			}
		}
		// earliest record wins, mirroring ledger replay
		if prior, ok := byTable[rec.TableID]; ok && prior.Seq <= rec.Seq {
			continue
		}
		byTable[rec.TableID] = rec
	}

	entries := make([]TableEntry, 0, len(byTable))
	for _, rec := range byTable {
		entries = append(entries, TableEntry{
			TableID:     rec.TableID,
			Severity:    rec.Severity,
			Artifact:    rec.ArtifactPath,
			Fingerprint: rec.Fingerprint,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if len(position) > 0 {
			return position[entries[i].TableID] < position[entries[j].TableID]
		}
		return entries[i].TableID < entries[j].TableID
	})

	total := len(opts.PlanOrder)
	if total == 0 {
		total = len(entries)
	}

	s := RunSummary{
		SchemaVersion:   SchemaVersion,
		RunID:           runID,
		State:           opts.State,
		Verdict:         VerdictPassed,
		FailOn:          opts.FailOn.Strings(),
		ContinueOnError: opts.ContinueOnError,
		AllowRawOutput:  opts.AllowRawOutput,
		TotalTasks:      total,
		Counts:          make(map[string]int, 4),
		Executed:        opts.Executed,
		AlreadyDone:     opts.AlreadyDone,
		NotRun:          total - len(entries),
		AbortReason:     opts.AbortReason,
		AbortedAfter:    opts.AbortedAfter,
		Error:           opts.Error,
		StartedAt:       opts.StartedAt.UTC(),
		FinishedAt:      opts.FinishedAt.UTC(),
		Tables:          entries,
		Audit:           opts.Audit,
	}
	for _, sev := range check.AllSeverities() {
		s.Counts[sev.String()] = 0
	}
	for _, e := range entries {
		s.Counts[e.Severity.String()]++
		if opts.FailOn.Contains(e.Severity) {
			s.Failed++
			s.Verdict = VerdictFailed
		} else {
			s.Passed++
		}
	}
	return s
}

// IsTerminal reports whether the summary describes a concluded run: finished
// with every task accounted for, or aborted.
func (s RunSummary) IsTerminal() bool {
	if len(s.Tables)+s.NotRun != s.TotalTasks {
		return false
	}
	switch s.State {
	case StateFinished:
		return s.NotRun == 0
	case StateAborted:
		return true
	default:
		return false
	}
}
