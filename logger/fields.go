package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across dcheck.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldRunID   = "run_id"
	FieldTable   = "table"
	FieldModule  = "module"
	FieldAttempt = "attempt"

	// Components
	FieldComponent = "component"

	// Outcomes
	FieldSeverity    = "severity"
	FieldStatus      = "status"
	FieldState       = "state"
	FieldVerdict     = "verdict"
	FieldFingerprint = "fingerprint"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldTimeout    = "timeout"

	// Errors
	FieldError     = "error"
	FieldErrorType = "error_type"

	// Counts and sizes
	FieldCount      = "count"
	FieldTotalCount = "total_count"
	FieldIndex      = "index"

	// Files and paths
	FieldPath = "path"
	FieldSeq  = "seq"
)

// Context keys for propagating logging context
type contextKey string

const (
	runIDKey  contextKey = "logger_run_id"
	tableKey  contextKey = "logger_table"
	moduleKey contextKey = "logger_module"
)

// WithRunID adds a run ID to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithTable adds a table identifier to the context for logging
func WithTable(ctx context.Context, table string) context.Context {
	return context.WithValue(ctx, tableKey, table)
}

// WithModule adds a validation module name to the context for logging
func WithModule(ctx context.Context, module string) context.Context {
	return context.WithValue(ctx, moduleKey, module)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	if table, ok := ctx.Value(tableKey).(string); ok && table != "" {
		fields = append(fields, FieldTable, table)
	}
	if module, ok := ctx.Value(moduleKey).(string); ok && module != "" {
		fields = append(fields, FieldModule, module)
	}

	return fields
}

// LoggerFromContext returns a logger with fields extracted from context.
// Validation modules use this to log with run_id/table/module attached.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Runner struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func New(...) *Runner {
//	    return &Runner{logger: logger.ComponentLogger("runner")}
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
//
// Example:
//
//	tableLogger := logger.ChildLogger(baseLogger, logger.FieldTable, task.TableID)
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
