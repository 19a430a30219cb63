package commands

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"

	"github.com/teranos/dcheck/errors"
	"github.com/teranos/dcheck/runner"
)

// exitError carries a specific process exit code out of a command.
// reported means the command already told the user what happened.
type exitError struct {
	code     int
	err      error
	reported bool
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// ExitCode returns the process exit code for an error returned by a command.
// Errors without an explicit code are fatal.
func ExitCode(err error) int {
	if err == nil {
		return runner.ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return runner.ExitFatal
}

// ReportError prints err unless the command already did. Integrity
// violations get their own banner.
func ReportError(w io.Writer, err error) {
	var ee *exitError
	if errors.As(err, &ee) && ee.reported {
		return
	}
	if errors.IsIntegrityViolation(err) {
		printIntegrityBanner(w, err)
		return
	}
	fmt.Fprintln(w, pterm.Error.Sprint(err.Error()))
	for _, hint := range errors.GetAllHints(err) {
		fmt.Fprintln(w, pterm.Info.Sprint(hint))
	}
}
