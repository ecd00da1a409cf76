// Package rbqlerror implements the engine's error taxonomy: every failure
// that can terminate a query maps to exactly one of ParsingError,
// RuntimeError, BadFieldError, or UnexpectedError, which the record driver
// then classifies into an (kind, message) pair for the external error
// callback (spec sections 4.1 and 7).
//
// The shape is adapted from the teacher's pkg/error.DBError: a structured
// error carrying a category, message, optional cause, and captured stack,
// but the category enum is specialized to this engine's three-kind
// taxonomy instead of the teacher's five-category storage-engine scheme.
package rbqlerror

import (
	"fmt"
	"runtime"
)

// Category classifies an RBQLError for the external error callback.
type Category int

const (
	// CategoryParsing covers misuse of the query language itself:
	// aggregation functions composed inside expressions, multiple UNNEST
	// calls, DISTINCT/ORDER BY combined with aggregation.
	CategoryParsing Category = iota

	// CategoryExecution covers failures encountered while running an
	// otherwise well-formed query: bad field access, arithmetic coercion
	// failures, join/update cardinality violations.
	CategoryExecution

	// CategoryUnexpected covers anything outside the taxonomy above.
	CategoryUnexpected
)

// String renders the category using the external wire names from spec
// section 6 ("query parsing" / "query execution" / "unexpected").
func (c Category) String() string {
	switch c {
	case CategoryParsing:
		return "query parsing"
	case CategoryExecution:
		return "query execution"
	default:
		return "unexpected"
	}
}

// RBQLError is the common structure behind every exported error type in
// this package.
type RBQLError struct {
	Category Category
	Message  string
	Cause    error
	Stack    []uintptr
}

func (e *RBQLError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Unwrap enables errors.Is / errors.As traversal to the underlying cause.
func (e *RBQLError) Unwrap() error {
	return e.Cause
}

// FormatStack renders the captured call stack, mirroring the teacher's
// DBError.FormatStack, surfaced only when the engine runs in debug mode
// (spec section 7, "Unexpected").
func (e *RBQLError) FormatStack() string {
	if len(e.Stack) == 0 {
		return ""
	}
	frames := runtime.CallersFrames(e.Stack)
	out := "stack trace:\n"
	for {
		f, more := frames.Next()
		out += fmt.Sprintf("  %s\n    %s:%d\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return out
}

func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[:n]
}

// ParsingError represents misuse of the RBQL aggregation/UNNEST/DISTINCT
// rules, per spec section 7.
type ParsingError struct{ *RBQLError }

// NewParsingError builds a ParsingError with the given message.
func NewParsingError(format string, args ...any) *ParsingError {
	return &ParsingError{&RBQLError{
		Category: CategoryParsing,
		Message:  fmt.Sprintf(format, args...),
		Stack:    captureStack(),
	}}
}

// RuntimeError represents a runtime failure during query execution: number
// coercion, UPDATE/STRICT LEFT JOIN cardinality violations, non-constant
// aggregate output columns.
type RuntimeError struct{ *RBQLError }

// NewRuntimeError builds a RuntimeError with the given message.
func NewRuntimeError(format string, args ...any) *RuntimeError {
	return &RuntimeError{&RBQLError{
		Category: CategoryExecution,
		Message:  fmt.Sprintf(format, args...),
		Stack:    captureStack(),
	}}
}

// BadFieldError represents a dynamic access to a missing field index
// (spec section 4.7). Index is 0-based; the driver formats it as the
// 1-based column name a<idx+1> together with the current record number.
type BadFieldError struct {
	*RBQLError
	Index int
}

// NewBadFieldError builds a BadFieldError for the given 0-based field index.
func NewBadFieldError(index int) *BadFieldError {
	return &BadFieldError{
		RBQLError: &RBQLError{
			Category: CategoryExecution,
			Message:  fmt.Sprintf("no 'a%d' column", index+1),
			Stack:    captureStack(),
		},
		Index: index,
	}
}

// UnexpectedError wraps any failure that doesn't fit the taxonomy above.
type UnexpectedError struct{ *RBQLError }

// NewUnexpectedError wraps cause as an UnexpectedError.
func NewUnexpectedError(cause error) *UnexpectedError {
	return &UnexpectedError{&RBQLError{
		Category: CategoryUnexpected,
		Message:  "unexpected error",
		Cause:    cause,
		Stack:    captureStack(),
	}}
}

// Classify maps any error into the (kind, message) pair the external error
// callback expects, per spec section 4.1's classification table. NR is the
// current record number, used to format BadField and catch-all messages.
func Classify(err error, nr int64) (kind string, message string) {
	switch e := err.(type) {
	case *BadFieldError:
		return CategoryExecution.String(), fmt.Sprintf("No 'a%d' column at record: %d", e.Index+1, nr)
	case *ParsingError:
		return CategoryParsing.String(), e.Message
	case *RuntimeError:
		return CategoryExecution.String(), e.Message
	case *UnexpectedError:
		return CategoryUnexpected.String(), fmt.Sprintf("At record: %d, Details: %v", nr, e.Cause)
	default:
		return CategoryExecution.String(), fmt.Sprintf("At record: %d, Details: %v", nr, err)
	}
}
