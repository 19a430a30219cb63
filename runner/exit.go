package runner

import (
	"context"

	"github.com/teranos/dcheck/errors"
	"github.com/teranos/dcheck/summary"
)

// Process exit codes
const (
	ExitOK            = 0
	ExitPolicyFailure = 1 // verdict failed
	ExitFatal         = 2 // spec error, durability fault or integrity violation
	ExitInterrupted   = 3 // cancelled between tasks, resumable
)

// ExitCode maps a run's result and error to the process exit code.
// Failed tables absorbed within the fail-on tolerance still exit 0.
func ExitCode(res *Result, err error) int {
	switch {
	case err == nil:
	case errors.IsIntegrityViolation(err), errors.IsDurabilityFault(err):
		return ExitFatal
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ExitInterrupted
	default:
		return ExitFatal
	}
	if res != nil && res.Summary.Verdict == summary.VerdictFailed {
		return ExitPolicyFailure
	}
	return ExitOK
}
