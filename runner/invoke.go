package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/teranos/dcheck/check"
	"github.com/teranos/dcheck/errors"
	"github.com/teranos/dcheck/logger"
	"github.com/teranos/dcheck/plan"
)

type reply struct {
	findings []check.Finding
	err      error
}

// invoke runs one module against one table. It always produces a result:
// errors, panics and timeouts become fail-severity findings.
//
// The call runs detached from ctx's cancellation so that a stop request
// never interrupts a table midway; the module timeout still applies. A
// module that ignores its context is abandoned once the timeout fires and
// whatever it returns later is discarded.
func (r *Runner) invoke(ctx context.Context, task plan.TableTask, module string) (check.ModuleResult, time.Duration) {
	start := r.now()
	log := logger.ChildLogger(r.logger, logger.FieldTable, task.TableID, logger.FieldModule, module)

	v := r.registry.Get(module)
	if v == nil {
		return capabilityFault(module, errors.Mark(errors.Newf("module %s is not registered", module), errors.ErrCapability)), 0
	}

	callCtx := logger.WithModule(logger.WithTable(context.WithoutCancel(ctx), task.TableID), module)
	callCtx, cancel := context.WithTimeout(callCtx, r.spec.ModuleTimeout)
	defer cancel()

	done := make(chan reply, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- reply{err: errors.Mark(errors.Newf("module panicked: %v", p), errors.ErrCapability)}
			}
		}()
		findings, err := v.Run(callCtx, task.TableID, task.ModuleConfig(module))
		done <- reply{findings: findings, err: err}
	}()

	var res reply
	select {
	case res = <-done:
	case <-callCtx.Done():
		// a module may race its own deadline; prefer what it returned
		select {
		case res = <-done:
		default:
			res.err = callCtx.Err()
		}
	}
	elapsed := r.now().Sub(start)

	// once the deadline has passed, any error is the module giving up on it,
	// whether it surfaces as ctx.Err() or a driver's own "interrupted"
	if res.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		log.Warnw("Module timed out",
			logger.FieldTimeout, r.spec.ModuleTimeout,
			logger.FieldDurationMS, elapsed.Milliseconds())
		return timeoutFault(module, r.spec.ModuleTimeout), elapsed
	}
	if res.err != nil {
		log.Warnw("Module failed",
			logger.FieldError, res.err,
			logger.FieldDurationMS, elapsed.Milliseconds())
		return capabilityFault(module, res.err), elapsed
	}
	for i, f := range res.findings {
		if !f.Severity.Valid() {
			err := errors.Mark(errors.Newf("finding %d has invalid severity %d", i, int(f.Severity)), errors.ErrCapability)
			return capabilityFault(module, err), elapsed
		}
	}
	// findings are persisted as JSON, so NaN, Inf or unencodable evidence
	// is the module's fault, not the writer's
	if _, err := json.Marshal(res.findings); err != nil {
		log.Warnw("Module returned findings that cannot be encoded", logger.FieldError, err)
		return capabilityFault(module, errors.Mark(errors.Wrap(err, "findings cannot be encoded as JSON"), errors.ErrCapability)), elapsed
	}

	findings := res.findings
	if findings == nil {
		findings = []check.Finding{}
	}
	result := check.ModuleResult{
		Module:   module,
		Severity: check.MaxFindingSeverity(findings),
		Findings: findings,
	}
	log.Debugw("Module finished",
		logger.FieldSeverity, result.Severity,
		logger.FieldCount, len(findings),
		logger.FieldDurationMS, elapsed.Milliseconds())
	return result, elapsed
}

func capabilityFault(module string, err error) check.ModuleResult {
	return check.ModuleResult{
		Module:   module,
		Severity: check.SeverityFail,
		Fault:    check.FaultCapability,
		Findings: []check.Finding{{
			Rule:      check.FaultCapability,
			Severity:  check.SeverityFail,
			Message:   err.Error(),
			Sensitive: check.Declare(false),
		}},
	}
}

func timeoutFault(module string, timeout time.Duration) check.ModuleResult {
	return check.ModuleResult{
		Module:   module,
		Severity: check.SeverityFail,
		Fault:    check.FaultTimeout,
		Findings: []check.Finding{{
			Rule:      check.FaultTimeout,
			Severity:  check.SeverityFail,
			Message:   fmt.Sprintf("module %s did not finish within %s", module, timeout),
			Metrics:   map[string]any{"timeout_ms": timeout.Milliseconds()},
			Sensitive: check.Declare(false),
		}},
	}
}
