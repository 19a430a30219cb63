// Package progress reports run progress to a terminal or as JSON lines.
//
// Implementations include:
// - CLIEmitter: Pretty-printed terminal output using pterm
// - JSONEmitter: Structured JSON events for schedulers and log shippers
// - Nop: Discards everything (tests, --quiet)
package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/pterm/pterm"
)

// Emitter receives progress updates from the runner.
type Emitter interface {
	// EmitStage announces the start of a run phase
	EmitStage(stage string, message string)

	// EmitTask announces that a table task reached a terminal state
	EmitTask(event TaskEvent)

	// EmitComplete announces the end of the run with summary values
	EmitComplete(summary map[string]interface{})

	// EmitError announces an error
	EmitError(stage string, err error)

	// EmitInfo reports run-level notes such as how much a resume skips
	EmitInfo(message string)
}

// TaskEvent describes one finished table task
type TaskEvent struct {
	Index      int    `json:"index"` // 1-based position in the plan
	Total      int    `json:"total"`
	TableID    string `json:"table"`
	Status     string `json:"status"` // severity, or "already-done" on resume
	DurationMS int64  `json:"duration_ms"`
}

// Event is a structured JSON progress event
type Event struct {
	Type      string                 `json:"type"` // "stage", "task", "complete", "error", "info"
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// CLIEmitter outputs pretty-printed progress to the terminal using pterm
type CLIEmitter struct {
	verbosity int
}

// NewCLIEmitter creates a CLI progress emitter for terminal output
func NewCLIEmitter(verbosity int) *CLIEmitter {
	return &CLIEmitter{verbosity: verbosity}
}

// EmitStage prints a stage announcement
func (e *CLIEmitter) EmitStage(stage string, message string) {
	pterm.Printf("%s %s\n", pterm.LightCyan(stage+":"), message)
}

// EmitTask prints one line per finished table
func (e *CLIEmitter) EmitTask(event TaskEvent) {
	counter := pterm.Gray(fmt.Sprintf("[%d/%d]", event.Index, event.Total))
	pterm.Printf("%s %s %s %s\n", counter, statusLabel(event.Status), event.TableID,
		pterm.Gray(fmt.Sprintf("(%dms)", event.DurationMS)))
}

func statusLabel(status string) string {
	label := fmt.Sprintf("%-12s", status)
	switch status {
	case "ok":
		return pterm.Green(label)
	case "warning":
		return pterm.Yellow(label)
	case "error", "fail":
		return pterm.Red(label)
	default:
		return pterm.Gray(label)
	}
}

// EmitComplete prints the completion summary
func (e *CLIEmitter) EmitComplete(summary map[string]interface{}) {
	switch {
	case summary["state"] == "aborted":
		pterm.Warning.Printf("Run aborted (%v), %v of %v tables not run\n",
			summary["abort_reason"], summary["not_run"], summary["total"])
	case summary["verdict"] == "failed":
		pterm.Warning.Println("Run finished with policy failures")
	default:
		pterm.Success.Println("Run complete")
	}
	if e.verbosity >= 1 {
		keys := make([]string, 0, len(summary))
		for key := range summary {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			pterm.Printf("  %s: %v\n", key, summary[key])
		}
	}
}

// EmitError prints an error
func (e *CLIEmitter) EmitError(stage string, err error) {
	pterm.Error.Printf("Error in %s: %v\n", stage, err)
}

// EmitInfo prints an informational message at -v and above
func (e *CLIEmitter) EmitInfo(message string) {
	if e.verbosity >= 1 {
		pterm.Info.Println(message)
	}
}

// JSONEmitter writes one JSON event per line
type JSONEmitter struct {
	mu      sync.Mutex
	encoder *json.Encoder
	now     func() time.Time
}

// NewJSONEmitter creates a JSON progress emitter writing to w
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{
		encoder: json.NewEncoder(w),
		now:     time.Now,
	}
}

func (e *JSONEmitter) emit(eventType string, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// Progress is best-effort; a broken pipe must not fail the run
	_ = e.encoder.Encode(Event{Type: eventType, Timestamp: e.now().UTC(), Data: data})
}

// EmitStage emits a stage event
func (e *JSONEmitter) EmitStage(stage string, message string) {
	e.emit("stage", map[string]interface{}{
		"stage":   stage,
		"message": message,
	})
}

// EmitTask emits a task event
func (e *JSONEmitter) EmitTask(event TaskEvent) {
	e.emit("task", map[string]interface{}{
		"index":       event.Index,
		"total":       event.Total,
		"table":       event.TableID,
		"status":      event.Status,
		"duration_ms": event.DurationMS,
	})
}

// EmitComplete emits a completion event
func (e *JSONEmitter) EmitComplete(summary map[string]interface{}) {
	e.emit("complete", summary)
}

// EmitError emits an error event
func (e *JSONEmitter) EmitError(stage string, err error) {
	e.emit("error", map[string]interface{}{
		"stage": stage,
		"error": err.Error(),
	})
}

// EmitInfo emits an info event
func (e *JSONEmitter) EmitInfo(message string) {
	e.emit("info", map[string]interface{}{
		"message": message,
	})
}

// Nop discards all progress
type Nop struct{}

func (Nop) EmitStage(string, string) {}
func (Nop) EmitTask(TaskEvent) {}
func (Nop) EmitComplete(map[string]interface{}) {}
func (Nop) EmitError(string, error) {}
func (Nop) EmitInfo(string) {}
