// Package hasherr defines the failure taxonomy for hashdiff.
//
// Trial outcomes (crash, mismatch, timeout, not-verifiable) and harness
// failures (usage, configuration, I/O) each map to exactly one FailureClass,
// which determines the process exit code of the hashdiff command and the
// severity a finding is logged at.
package hasherr

import "fmt"

// FailureClass is a stable failure category.
type FailureClass string

const (
	Crash         FailureClass = "CRASH"
	Mismatch      FailureClass = "MISMATCH"
	Timeout       FailureClass = "TIMEOUT"
	NotVerifiable FailureClass = "NOT_VERIFIABLE"
	CLIUsage      FailureClass = "CLI_USAGE"
	Config        FailureClass = "CONFIG"
	InternalIO    FailureClass = "INTERNAL_IO"
	InternalError FailureClass = "INTERNAL_ERROR"
)

// ExitCode returns the process exit code for this failure class.
//
// Timeouts and unverifiable comparisons are inconclusive and never fail a run.
func (fc FailureClass) ExitCode() int {
	switch fc {
	case Crash, Mismatch:
		return 1
	case Timeout, NotVerifiable:
		return 0
	case InternalIO, InternalError:
		return 10
	default:
		return 2
	}
}

// Surfaced reports whether findings of this class count against a run.
func (fc FailureClass) Surfaced() bool {
	return fc == Crash || fc == Mismatch
}

// Error is the structured error type for classified hashdiff failures.
type Error struct {
	Class   FailureClass
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("hasherr: %s: %s: %v", e.Class, e.Message, e.Cause)
	}
	return fmt.Sprintf("hasherr: %s: %s", e.Class, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given class and message.
func New(class FailureClass, message string) *Error {
	return &Error{Class: class, Message: message}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(class FailureClass, message string, cause error) *Error {
	return &Error{Class: class, Message: message, Cause: cause}
}
