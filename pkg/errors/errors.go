// Package errors provides structured error handling for the converter with
// error categorization, key-value context and stack capture.
//
// # Overview
//
// Every failure the pipeline reports carries an ErrorType. The type decides
// how the driver reacts:
//
//   - ErrorTypeNoInput: zero candidate files; fatal before any output exists
//   - ErrorTypeUnreadableFile: one file failed to decode or parse; the file is
//     skipped and the job continues
//   - ErrorTypeSchemaMismatch: a batch reached the writer with the wrong columns;
//     fatal to the job
//   - ErrorTypeSchemaDrift: a later file changed the column set and the drift
//     policy is "fail"; fatal to the job
//   - ErrorTypeEmptyResult: every input was empty or unreadable; the job ends
//     without a usable output
//   - ErrorTypeDestinationWrite: the output path cannot be created or written;
//     fatal before processing
//
// # Basic Usage
//
//	err := errors.UnreadableFile("data/part-1.csv.gz", cause).
//	    WithDetail("line", 1042)
//
//	if errors.IsType(err, errors.ErrorTypeUnreadableFile) {
//	    // count as skipped
//	}
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error.
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeNoInput represents an input root without candidate files
	ErrorTypeNoInput ErrorType = "no_input"
	// ErrorTypeUnreadableFile represents a single input that could not be decoded or parsed
	ErrorTypeUnreadableFile ErrorType = "unreadable_file"
	// ErrorTypeSchemaMismatch represents a batch that does not match the canonical schema at write time
	ErrorTypeSchemaMismatch ErrorType = "schema_mismatch"
	// ErrorTypeSchemaDrift represents a column set change rejected by the drift policy
	ErrorTypeSchemaDrift ErrorType = "schema_drift"
	// ErrorTypeEmptyResult represents a run that wrote zero rows
	ErrorTypeEmptyResult ErrorType = "empty_result"
	// ErrorTypeDestinationWrite represents an output path that is not creatable or writable
	ErrorTypeDestinationWrite ErrorType = "destination_write"
	// ErrorTypeCancelled represents a run stopped by its context
	ErrorTypeCancelled ErrorType = "cancelled"
)

// Error represents a structured error with context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by type, so errors.Is(err, &Error{Type: t}) works
// as a type check through wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Type == e.Type
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Detail returns a detail value and whether it was set.
func (e *Error) Detail(key string) (interface{}, bool) {
	v, ok := e.Details[key]
	return v, ok
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context. Returns nil if err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
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

// IsType checks if the outermost structured error in the chain is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the type of the outermost structured error, or ErrorTypeInternal.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// IsFatal reports whether err aborts a whole job. Unreadable files are the
// only per-file failures; everything else stops the run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return TypeOf(err) != ErrorTypeUnreadableFile
}

// captureStack captures the current call stack
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
