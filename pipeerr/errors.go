// Package pipeerr provides structured error types for checkmate pipeline stages.
//
// It defines the standard error codes used across the pipeline and a
// structured Error type carrying the service and operation that failed, a
// failure class driving the stage's propagation policy, and a cause chain.
// It integrates with Go's standard errors package for wrapping and
// unwrapping.
package pipeerr

import (
	"errors"
	"fmt"
	"strings"
)

// Standard error codes used across pipeline stages.
const (
	// ErrCodeConfig indicates a missing artifact or malformed plan at stage start.
	ErrCodeConfig = "CONFIG_ERROR"

	// ErrCodeParse indicates a payload decode or query split failure.
	ErrCodeParse = "PARSE_ERROR"

	// ErrCodeValidation indicates an unknown node type, an attribute not on
	// the schema, or a missing required property.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeBus indicates a poll or publish failure on the event bus.
	ErrCodeBus = "BUS_ERROR"

	// ErrCodeUpstream indicates a graph or staging store call failure.
	ErrCodeUpstream = "UPSTREAM_ERROR"

	// ErrCodeHandler indicates an uncaught handler failure.
	ErrCodeHandler = "HANDLER_ERROR"
)

// Class categorizes an error by the scope of its damage, which determines
// how the stage reacts to it.
type Class string

const (
	// ClassFatal terminates the stage; the orchestrator restarts it and the
	// bus redelivers uncommitted events.
	ClassFatal Class = "fatal"

	// ClassEvent terminates processing of a single event: the event is
	// committed without publishing and the stage continues.
	ClassEvent Class = "event"

	// ClassTransient indicates a failure the surrounding stage may choose to
	// re-queue (e.g. a rolled-back graph chunk).
	ClassTransient Class = "transient"
)

// Error is a structured error for pipeline operations.
type Error struct {
	// Service is the stage that generated the error (e.g. "pipelineController").
	Service string

	// Operation is the specific operation that failed (e.g. "plan", "publish").
	Operation string

	// Code is one of the ErrCode constants.
	Code string

	// Message is a human-readable description.
	Message string

	// Details holds additional context as key-value pairs.
	Details map[string]any

	// Cause is the underlying error, if any.
	Cause error

	// Class drives the stage's propagation policy for this error.
	Class Class
}

// New creates a new structured pipeline error. The class defaults to the
// standard class for the code (see DefaultClassForCode).
func New(service, operation, code, message string) *Error {
	return &Error{
		Service:   service,
		Operation: operation,
		Code:      code,
		Message:   message,
		Class:     DefaultClassForCode(code),
	}
}

// WithCause attaches an underlying error and returns the error for chaining.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetails attaches additional context and returns the error for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithClass overrides the failure class and returns the error for chaining.
func (e *Error) WithClass(class Class) *Error {
	e.Class = class
	return e
}

// Error implements the error interface. The format is
// "service: operation: [CODE] message: cause".
func (e *Error) Error() string {
	var b strings.Builder
	if e.Service != "" {
		b.WriteString(e.Service)
		b.WriteString(": ")
	}
	if e.Operation != "" {
		b.WriteString(e.Operation)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause for errors.Is/errors.As traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *Error with the same code. This lets
// callers match on sentinel errors built with New(..., code, ...).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// DefaultClassForCode returns the propagation class mandated by the
// pipeline's error handling design for a given code.
func DefaultClassForCode(code string) Class {
	switch code {
	case ErrCodeConfig, ErrCodeBus:
		return ClassFatal
	case ErrCodeParse, ErrCodeValidation, ErrCodeHandler:
		return ClassEvent
	case ErrCodeUpstream:
		return ClassTransient
	default:
		return ClassEvent
	}
}

// CodeOf extracts the pipeline error code from err, unwrapping as needed.
// Returns the empty string if err carries no *Error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ClassOf extracts the failure class from err, unwrapping as needed.
// Unclassified errors are treated as event-scoped so a single bad event can
// never take the stage down by default.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ClassEvent
}

// IsFatal reports whether err should terminate the stage.
func IsFatal(err error) bool {
	return ClassOf(err) == ClassFatal
}
