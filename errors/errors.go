// Package errors provides error handling for dcheck.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints for operators
//
// It also defines the run-level fault taxonomy. Task-local faults never
// leave the orchestrator loop; the sentinels below are the system-level
// faults that terminate a run.
//
// Usage:
//
//	// Wrap with context
//	if err := ledger.Append(runID, rec); err != nil {
//	    return errors.Wrap(err, "append ledger record")
//	}
//
//	// Classify
//	if errors.IsIntegrityViolation(err) {
//	    // print banner, exit 2
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint      = crdb.WithHint
	WithHintf     = crdb.WithHintf
	WithDetail    = crdb.WithDetail
	WithDetailf   = crdb.WithDetailf
	CombineErrors = crdb.CombineErrors
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Run fault taxonomy. Use these with errors.Is(); wrap them with Mark or the
// constructors below to keep the classification while adding context.
var (
	// ErrSpecInvalid indicates a bad plan. Non-retryable, raised before any task runs.
	ErrSpecInvalid = New("invalid run spec")

	// ErrCapability indicates a validation module invocation failed unexpectedly.
	// The orchestrator absorbs it into a fail-severity outcome.
	ErrCapability = New("capability fault")

	// ErrDurability indicates a ledger or artifact I/O failure. Fatal to the run.
	ErrDurability = New("durability fault")

	// ErrIntegrity indicates recorded history disagrees with what is on disk
	// or with what is being recorded. Fatal and never auto-corrected.
	ErrIntegrity = New("integrity violation")

	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")
)

// IntegrityHint is attached to every integrity violation.
const IntegrityHint = "inspect the ledger and the table artifact manually before retrying; " +
	"if the recorded result is wrong, retire it with 'dcheck ledger supersede' and resume"

// NewSpecError creates a spec error with a formatted message
func NewSpecError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrSpecInvalid)
}

// WrapDurability marks an I/O error as a durability fault
func WrapDurability(err error, msg string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, msg), ErrDurability)
}

// NewIntegrityViolation creates an integrity violation with the operator hint attached
func NewIntegrityViolation(format string, args ...interface{}) error {
	return WithHint(Mark(Newf(format, args...), ErrIntegrity), IntegrityHint)
}

// IsSpecError checks if an error is or wraps ErrSpecInvalid
func IsSpecError(err error) bool {
	return err != nil && Is(err, ErrSpecInvalid)
}

// IsDurabilityFault checks if an error is or wraps ErrDurability
func IsDurabilityFault(err error) bool {
	return err != nil && Is(err, ErrDurability)
}

// IsIntegrityViolation checks if an error is or wraps ErrIntegrity
func IsIntegrityViolation(err error) bool {
	return err != nil && Is(err, ErrIntegrity)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}
