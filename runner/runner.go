// Package runner is the run orchestrator. It walks a plan's tables in order,
// skips tables the ledger already holds, invokes validation modules, passes
// every outcome through the redaction gate, persists it (artifact first, then
// ledger) and applies the run's fail policy.
package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/dcheck/artifact"
	"github.com/teranos/dcheck/audit"
	"github.com/teranos/dcheck/check"
	"github.com/teranos/dcheck/errors"
	"github.com/teranos/dcheck/ledger"
	"github.com/teranos/dcheck/logger"
	"github.com/teranos/dcheck/plan"
	"github.com/teranos/dcheck/progress"
	"github.com/teranos/dcheck/redact"
	"github.com/teranos/dcheck/summary"
)

// TaskStatus is the terminal state of one table task in this attempt
type TaskStatus string

const (
	StatusCompleted   TaskStatus = "completed"
	StatusAlreadyDone TaskStatus = "already-done"
)

// TaskOutcome is what one table task produced. For already-done tasks the
// results come from the stored artifact.
type TaskOutcome struct {
	TableID     string
	Status      TaskStatus
	Severity    check.Severity
	Results     []check.ModuleResult
	Artifact    string // relative to the run directory
	Fingerprint string
	Timestamp   time.Time
	Duration    time.Duration
}

// Result is returned by Run on every path that got as far as opening the
// ledger, including fatal ones.
type Result struct {
	Summary     summary.RunSummary
	SummaryPath string // empty when the summary could not be written
	Outcomes    []TaskOutcome
}

// Options tune a run. The zero value is a fresh, unthrottled, silent run.
type Options struct {
	// Resume keeps the run's existing ledger records. Without it a run over
	// an existing ledger first retires every earlier record.
	Resume bool

	// TasksPerMinute spaces task starts; 0 means no limit.
	TasksPerMinute int

	Emitter progress.Emitter
	Audit   *audit.Metadata
	Logger  *zap.SugaredLogger
}

// Runner executes one RunSpec.
type Runner struct {
	spec     *plan.RunSpec
	registry *check.Registry
	opts     Options
	emitter  progress.Emitter
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// New creates a runner. registry must hold every module the plan names;
// plan.Load checks that when given the same registry as its catalog.
func New(spec *plan.RunSpec, registry *check.Registry, opts Options) *Runner {
	log := opts.Logger
	if log == nil {
		log = logger.ComponentLogger("runner")
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = progress.Nop{}
	}
	return &Runner{
		spec:     spec,
		registry: registry,
		opts:     opts,
		emitter:  emitter,
		logger:   log.With(logger.FieldRunID, spec.RunID),
		now:      time.Now,
	}
}

// attempt is the mutable state of one Run call
type attempt struct {
	started      time.Time
	outcomes     []TaskOutcome
	executed     int
	alreadyDone  int
	abortReason  string
	abortedAfter string
}

// Run executes the plan. The returned error is non-nil only for fatal
// faults: durability (ledger or artifact I/O), integrity (history disagrees
// with the artifacts) and cancellation. Validation failures and module
// faults are recorded in the outcomes and the summary verdict instead.
//
// Cancellation is honoured between tasks only; a table that has started is
// always finished and persisted first. Whatever the exit path, a summary
// reflecting the ledger is written when the ledger could be opened.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	a := &attempt{started: r.now()}
	runDir := r.spec.RunDir()

	r.emitter.EmitStage("initializing", "opening ledger in "+runDir)
	led, err := ledger.Open(filepath.Join(runDir, ledger.FileName), r.spec.RunID, r.logger.Named("ledger"))
	if err != nil {
		r.logger.Errorw("Cannot open ledger", logger.FieldError, err)
		r.emitter.EmitError("initializing", err)
		return nil, err
	}
	r.logger.Debugw("Ledger opened", logger.FieldPath, led.Path(), logger.FieldCount, len(led.Records()))
	defer func() {
		if cerr := led.Close(); cerr != nil {
			r.logger.Warnw("Failed to close ledger", logger.FieldError, cerr)
		}
	}()

	if prior := len(led.Completed(r.spec.RunID)); prior > 0 {
		if r.opts.Resume {
			recorded := 0
			for _, id := range r.spec.TableIDs() {
				if _, ok := led.IsComplete(r.spec.RunID, id); ok {
					recorded++
				}
			}
			r.emitter.EmitInfo(fmt.Sprintf("resuming: %d of %d table(s) already recorded", recorded, r.spec.TaskCount()))
		} else {
			r.logger.Infow("Fresh run over existing ledger, superseding earlier records",
				logger.FieldCount, prior)
			r.emitter.EmitInfo(fmt.Sprintf("superseding %d earlier record(s); every table runs again", prior))
			if err := led.Supersede(r.spec.RunID, "", "fresh run started without resume"); err != nil {
				return r.finish(a, led, nil, err)
			}
		}
	}

	writer := artifact.NewWriter(r.spec.OutputRoot, led, r.logger.Named("artifact"))

	var limiter *rate.Limiter
	if r.opts.TasksPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(r.opts.TasksPerMinute)/60.0), 1)
	}

	r.emitter.EmitStage("in-progress", "validating tables")
	tasks := r.spec.Tasks()
	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			a.abortReason = summary.AbortCancelled
			return r.finish(a, led, writer, errors.Wrap(err, "run cancelled between tasks"))
		}

		outcome, err := r.runTask(ctx, task, led, writer, limiter)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				a.abortReason = summary.AbortCancelled
			}
			return r.finish(a, led, writer, err)
		}
		a.outcomes = append(a.outcomes, outcome)
		if outcome.Status == StatusAlreadyDone {
			a.alreadyDone++
		} else {
			a.executed++
		}

		status := outcome.Severity.String()
		if outcome.Status == StatusAlreadyDone {
			status = string(StatusAlreadyDone)
		}
		r.emitter.EmitTask(progress.TaskEvent{
			Index:      i + 1,
			Total:      len(tasks),
			TableID:    task.TableID,
			Status:     status,
			DurationMS: outcome.Duration.Milliseconds(),
		})

		if r.spec.ShouldFail(outcome.Severity) && !r.spec.ContinueOnError {
			r.logger.Warnw("Fail policy reached, aborting run",
				logger.FieldTable, task.TableID,
				logger.FieldSeverity, outcome.Severity,
				logger.FieldIndex, i+1,
				logger.FieldTotalCount, len(tasks))
			a.abortReason = summary.AbortPolicy
			a.abortedAfter = task.TableID
			break
		}
	}

	return r.finish(a, led, writer, nil)
}

// runTask takes one table from pending to a terminal state.
func (r *Runner) runTask(ctx context.Context, task plan.TableTask, led *ledger.Ledger, writer *artifact.Writer, limiter *rate.Limiter) (TaskOutcome, error) {
	log := r.logger.With(logger.FieldTable, task.TableID)

	if rec, ok := led.IsComplete(r.spec.RunID, task.TableID); ok {
		doc, err := writer.Verify(r.spec.RunID, rec)
		if err != nil {
			log.Errorw("Completed table does not match its artifact",
				logger.FieldFingerprint, rec.Fingerprint,
				logger.FieldSeq, rec.Seq,
				logger.FieldError, err)
			return TaskOutcome{}, err
		}
		log.Debugw("Table already done", logger.FieldSeq, rec.Seq)
		return TaskOutcome{
			TableID:     task.TableID,
			Status:      StatusAlreadyDone,
			Severity:    rec.Severity,
			Results:     doc.Results,
			Artifact:    rec.ArtifactPath,
			Fingerprint: rec.Fingerprint,
			Timestamp:   rec.Timestamp,
		}, nil
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			// Wait refuses early when the deadline would pass first
			if ctx.Err() == nil {
				err = errors.Mark(err, context.DeadlineExceeded)
			}
			return TaskOutcome{}, errors.Wrap(err, "run cancelled while throttled")
		}
	}

	start := r.now()
	results := make([]check.ModuleResult, 0, len(task.Modules))
	modulesMS := make(map[string]int64, len(task.Modules))
	for _, module := range task.Modules {
		res, elapsed := r.invoke(ctx, task, module)
		results = append(results, res)
		modulesMS[module] = elapsed.Milliseconds()
	}
	finished := r.now()

	sanitized, report := redact.SanitizeOutcome(results, r.spec.AllowRaw)
	if report.Events > 0 {
		log.Infow("Redacted sensitive output", logger.FieldCount, report.Events)
	}
	severity := check.ResultsSeverity(sanitized)

	ref, err := writer.WriteTableResult(r.spec.RunID, task.TableID, artifact.TableDocument{
		Severity:  severity,
		Modules:   task.Modules,
		Results:   sanitized,
		Redaction: report,
		Timing: artifact.Timing{
			StartedAt:  start.UTC(),
			FinishedAt: finished.UTC(),
			ModulesMS:  modulesMS,
		},
	})
	if err != nil {
		return TaskOutcome{}, err
	}

	// the artifact is durable; only now may the ledger claim the table
	if err := led.Append(r.spec.RunID, ledger.Record{
		TableID:      task.TableID,
		Severity:     severity,
		Fingerprint:  ref.Fingerprint,
		ArtifactPath: ref.RelPath,
		Timestamp:    finished.UTC(),
	}); err != nil {
		return TaskOutcome{}, err
	}

	log.Infow("Table validated",
		logger.FieldSeverity, severity,
		logger.FieldFingerprint, ref.Fingerprint,
		logger.FieldDurationMS, finished.Sub(start).Milliseconds())

	return TaskOutcome{
		TableID:     task.TableID,
		Status:      StatusCompleted,
		Severity:    severity,
		Results:     sanitized,
		Artifact:    ref.RelPath,
		Fingerprint: ref.Fingerprint,
		Timestamp:   finished.UTC(),
		Duration:    finished.Sub(start),
	}, nil
}

// finish aggregates the ledger into the summary and writes it. fatal is the
// error that ended the run, if any; it is returned unchanged. writer is nil
// when the run failed before artifacts could be written.
func (r *Runner) finish(a *attempt, led *ledger.Ledger, writer *artifact.Writer, fatal error) (*Result, error) {
	state := summary.StateFinished
	if fatal != nil || a.abortReason != "" {
		state = summary.StateAborted
	}
	opts := summary.Options{
		PlanOrder:       r.spec.TableIDs(),
		FailOn:          r.spec.FailOn(),
		ContinueOnError: r.spec.ContinueOnError,
		AllowRawOutput:  r.spec.AllowRaw,
		State:           state,
		AbortReason:     a.abortReason,
		AbortedAfter:    a.abortedAfter,
		Executed:        a.executed,
		AlreadyDone:     a.alreadyDone,
		StartedAt:       a.started,
		FinishedAt:      r.now(),
		Audit:           r.opts.Audit,
	}
	if fatal != nil {
		if opts.AbortReason == "" {
			opts.AbortReason = summary.AbortFatal
		}
		opts.Error = fatal.Error()
	}

	s := summary.Aggregate(r.spec.RunID, led.Completed(r.spec.RunID), opts)
	result := &Result{Summary: s, Outcomes: a.outcomes}

	if writer == nil {
		writer = artifact.NewWriter(r.spec.OutputRoot, led, r.logger.Named("artifact"))
	}
	ref, err := writer.WriteSummary(r.spec.RunID, s)
	switch {
	case err == nil:
		result.SummaryPath = ref.Path
	case fatal == nil:
		r.logger.Errorw("Failed to write summary", logger.FieldError, err)
		r.emitter.EmitError("summary", err)
		return result, err
	default:
		r.logger.Warnw("Failed to write summary after fatal error",
			logger.FieldError, err,
			"fatal", fatal)
	}

	if fatal != nil {
		r.logger.Errorw("Run aborted",
			logger.FieldState, s.State,
			logger.FieldError, fatal,
			logger.FieldErrorType, errorType(fatal))
		r.emitter.EmitError("run", fatal)
	} else {
		r.logger.Infow("Run concluded",
			logger.FieldState, s.State,
			logger.FieldVerdict, s.Verdict,
			logger.FieldCount, len(s.Tables),
			logger.FieldTotalCount, s.TotalTasks)
	}

	r.emitter.EmitComplete(map[string]interface{}{
		"run_id":        s.RunID,
		"state":         string(s.State),
		"verdict":       string(s.Verdict),
		"total":         s.TotalTasks,
		"passed":        s.Passed,
		"failed":        s.Failed,
		"executed":      s.Executed,
		"already_done":  s.AlreadyDone,
		"not_run":       s.NotRun,
		"abort_reason":  s.AbortReason,
		"aborted_after": s.AbortedAfter,
		"summary":       result.SummaryPath,
	})

	return result, fatal
}

func errorType(err error) string {
	switch {
	case errors.IsIntegrityViolation(err):
		return "integrity"
	case errors.IsDurabilityFault(err):
		return "durability"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}
