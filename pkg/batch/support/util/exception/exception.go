// Package exception provides the error types shared by the pipeline stages.
// Errors are classified by Severity: a fatal error stops a stage for one service type,
// a recoverable error fails a single unit of work (a partition or a year) and processing
// continues with the next unit.
package exception

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/hashicorp/go-multierror"
)

// Severity classifies how far a failure propagates.
type Severity int

const (
	// Recoverable failures affect one unit of work; the stage logs them and moves on.
	Recoverable Severity = iota
	// Fatal failures stop the stage for the affected service type.
	Fatal
)

// String returns the severity label.
func (s Severity) String() string {
	if s == Fatal {
		return "FATAL"
	}
	return "RECOVERABLE"
}

// Sentinel errors wrapped by BatchError.OriginalErr so callers can test with errors.Is.
var (
	// ErrPartitionMissing marks a source partition that does not exist.
	ErrPartitionMissing = errors.New("partition missing")
	// ErrSchemaMismatch marks a source partition whose columns do not match the declared schema.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrFactorMissing marks a service type with no emission factor.
	ErrFactorMissing = errors.New("emission factor missing")
	// ErrInvalidConfig marks configuration that cannot be used.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// BatchError is the error type returned by pipeline components.
// It holds the module where the error occurred, a message, the wrapped original error,
// and the severity of the failure.
type BatchError struct {
	// Module indicates where the error occurred (e.g., "loader", "cleaner", "config").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	// Severity tells the stage boundary whether to continue.
	Severity Severity
	// StackTrace is the stack trace at the time of the error (for debugging).
	StackTrace string
}

// NewBatchError creates a new BatchError with the given severity.
func NewBatchError(module, message string, originalErr error, severity Severity) *BatchError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		Severity:    severity,
		StackTrace:  string(buf[:n]),
	}
}

// NewFatal creates a fatal BatchError.
func NewFatal(module, message string, originalErr error) *BatchError {
	return NewBatchError(module, message, originalErr, Fatal)
}

// NewRecoverable creates a recoverable BatchError.
func NewRecoverable(module, message string, originalErr error) *BatchError {
	return NewBatchError(module, message, originalErr, Recoverable)
}

// NewFatalf creates a fatal BatchError with a formatted message.
// If the last argument is an error it becomes OriginalErr and is not used for formatting.
func NewFatalf(module, format string, a ...interface{}) *BatchError {
	msg, err := splitTrailingError(format, a)
	return NewBatchError(module, msg, err, Fatal)
}

// NewRecoverablef creates a recoverable BatchError with a formatted message.
// If the last argument is an error it becomes OriginalErr and is not used for formatting.
func NewRecoverablef(module, format string, a ...interface{}) *BatchError {
	msg, err := splitTrailingError(format, a)
	return NewBatchError(module, msg, err, Recoverable)
}

func splitTrailingError(format string, a []interface{}) (string, error) {
	var originalErr error
	args := a
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	return fmt.Sprintf(format, args...), originalErr
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Is and errors.As.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsBatchError reports whether err is, or wraps, a *BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// IsFatal reports whether err must stop the stage.
// A *BatchError in the chain decides by its Severity; an aggregated *multierror.Error is
// fatal if any of its members is. Context cancellation is always fatal. Other errors are
// treated as recoverable.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			if IsFatal(e) {
				return true
			}
		}
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.Severity == Fatal
	}
	return IsCanceled(err)
}

// IsRecoverable reports whether err affects only a single unit of work.
func IsRecoverable(err error) bool {
	return err != nil && !IsFatal(err)
}

// IsCanceled reports whether err comes from a canceled or expired context.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ExtractErrorMessage returns the Message of a BatchError or err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		if be.OriginalErr != nil {
			return be.Message + ": " + be.OriginalErr.Error()
		}
		return be.Message
	}
	return err.Error()
}
