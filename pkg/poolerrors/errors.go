// Package poolerrors provides structured error handling for dbpool with error
// categorization, key-value context and stack traces.
//
// # Overview
//
// Every failure the pool reports to a caller is a *Error carrying an
// ErrorType. Callers branch on the type rather than on message text:
//
//	h, err := pool.Acquire()
//	if err != nil {
//	    if poolerrors.IsFatal(err) {
//	        // driver missing or pool bookkeeping corrupted
//	        return err
//	    }
//	    // creation failed for this call only
//	}
//
// # Error Types
//
// The pool distinguishes five kinds of failure:
//   - ErrorTypeDriver: the connection factory cannot be used at all
//   - ErrorTypeCreation: one Acquire call failed to open a new connection
//   - ErrorTypeState: bookkeeping is inconsistent, or failed creations
//     have used up every connection slot
//   - ErrorTypeMisuse: double release, foreign handle, use after release
//   - ErrorTypeConfig: invalid construction parameters
//
// # Thread Safety
//
// Error instances are not thread-safe for modification. Use WithDetail
// before sharing an error across goroutines.
package poolerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error.
type ErrorType string

const (
	// ErrorTypeConfig represents invalid configuration or construction parameters
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeDriver represents an unavailable driver or connection factory
	ErrorTypeDriver ErrorType = "driver"
	// ErrorTypeCreation represents a failure to open a new pooled connection
	ErrorTypeCreation ErrorType = "creation"
	// ErrorTypeState represents corrupted pool bookkeeping
	ErrorTypeState ErrorType = "state"
	// ErrorTypeMisuse represents a contract violation by the caller
	ErrorTypeMisuse ErrorType = "misuse"
	// ErrorTypeConnection represents connection errors
	ErrorTypeConnection ErrorType = "connection"
)

// Error represents a structured error with context.
//
// Fields:
//   - Type: Categorizes the error for handling strategies
//   - Message: Human-readable error description
//   - Cause: The underlying error that caused this error
//   - Details: Key-value pairs providing additional context
//   - Stack: Call stack at the point of error creation
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface, returning the error type, message and
// cause (if present).
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, enabling errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. Calls can be chained.
//
// Example:
//
//	err := poolerrors.New(poolerrors.ErrorTypeConfig, "capacity must be positive").
//	    WithDetail("capacity", capacity)
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, capturing the
// call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the
// original error as the cause. If the error is already a structured Error,
// its stack trace is preserved. Returns nil if the input error is nil.
//
// Example:
//
//	conn, err := factory.Open(ctx)
//	if err != nil {
//	    return poolerrors.Wrap(err, poolerrors.ErrorTypeCreation, "failed to open connection").
//	        WithDetail("created", created)
//	}
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType checks if the outermost structured error in the chain is of the
// given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// IsFatal reports whether the error leaves the pool unusable. A missing
// driver, corrupted bookkeeping and invalid construction parameters are
// fatal; a failed creation or a misuse affects only the call that hit it.
func IsFatal(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeDriver, ErrorTypeState, ErrorTypeConfig:
		return true
	case ErrorTypeCreation, ErrorTypeMisuse, ErrorTypeConnection:
		return false
	default:
		return false
	}
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
