// Package errs defines the coded error values the engine returns across tool
// boundaries. Errors are values, never panics: every failing operation wraps
// its cause in an *Error tagged with one of the Code constants so the
// transport layer can surface a stable taxonomy to callers.
package errs

import (
	"errors"
	"fmt"
)

// Code identifies an error class in the public taxonomy.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeNotFound          Code = "RESOURCE_NOT_FOUND"
	CodeDatabase          Code = "DATABASE_ERROR"
	CodeConflict          Code = "CONFLICT_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeGateNotSatisfied  Code = "GATE_NOT_SATISFIED"
	CodeDependencyBlocked Code = "DEPENDENCY_BLOCKED"
	CodeOperationFailed   Code = "OPERATION_FAILED"
	CodeInternal          Code = "INTERNAL_ERROR"
)

// Error is a tagged error value. Details is human-readable context; Extra
// carries structured payloads (current version on conflicts, blocker IDs on
// dependency blocks, missing note keys on gate failures).
type Error struct {
	Code    Code
	Message string
	Details string
	Extra   map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// WithDetails returns a copy of the error carrying extra context.
func (e *Error) WithDetails(format string, args ...any) *Error {
	dup := *e
	dup.Details = fmt.Sprintf(format, args...)
	return &dup
}

// WithExtra returns a copy of the error with a structured payload attached.
func (e *Error) WithExtra(key string, value any) *Error {
	dup := *e
	dup.Extra = make(map[string]any, len(e.Extra)+1)
	for k, v := range e.Extra {
		dup.Extra[k] = v
	}
	dup.Extra[key] = value
	return &dup
}

// New creates a tagged error.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error with a code and message.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// Validation creates a VALIDATION_ERROR.
func Validation(format string, args ...any) *Error {
	return New(CodeValidation, format, args...)
}

// NotFound creates a RESOURCE_NOT_FOUND for the given entity kind and ID.
func NotFound(kind, id string) *Error {
	return New(CodeNotFound, "%s not found: %s", kind, id)
}

// Database wraps a driver error as a DATABASE_ERROR.
func Database(err error, format string, args ...any) *Error {
	return Wrap(CodeDatabase, err, format, args...)
}

// Conflict creates a CONFLICT_ERROR carrying the server's current version so
// the caller can refetch and retry.
func Conflict(id string, currentVersion int) *Error {
	e := New(CodeConflict, "version conflict on %s", id)
	return e.WithExtra("currentVersion", currentVersion)
}

// Duplicate creates a CONFLICT_ERROR for duplicate records.
func Duplicate(format string, args ...any) *Error {
	return New(CodeConflict, format, args...)
}

// As extracts the tagged error from an error chain, or nil.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// CodeOf returns the taxonomy code of an error, defaulting to INTERNAL_ERROR
// for untagged errors and "" for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if e := As(err); e != nil {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether the error chain carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
