// LOCATION: internal/errors/errors.go
//
// This file provides:
// - Sentinel errors for the ingest, store and query error taxonomy
// - Error category checking functions
// - HTTP status mapping for the transport layer
// - Error wrapping utilities

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Row validation: recoverable, the row is dropped and reported.
	ErrRowRejected    = errors.New("row rejected")
	ErrMissingTime    = errors.New("missing time")
	ErrMissingValue   = errors.New("missing value")
	ErrMissingChannel = errors.New("missing channel")

	// Chunk processing: recoverable, the stream continues with the next chunk.
	ErrChunkProcessing = errors.New("chunk processing failed")

	// Stream transport: terminal for one ingest session.
	ErrStreamTransport = errors.New("stream transport error")
	ErrSessionClosed   = errors.New("session is closed")

	// Query input: rejected before the store is touched.
	ErrInvalidQuery = errors.New("invalid query")
	ErrMissingParam = errors.New("missing required parameter")
	ErrInvalidTime  = errors.New("invalid time")
	ErrInvalidRange = errors.New("invalid time range")

	// Store
	ErrUnknownChannel = errors.New("unknown channel")

	// Transport / content negotiation
	ErrUnsupportedMedia = errors.New("unsupported media type")

	// Configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// Internal errors
	ErrInternal   = errors.New("internal error")
	ErrNotRunning = errors.New("service not running")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// IsRowValidation returns true if err describes a rejected row.
func IsRowValidation(err error) bool {
	return errors.Is(err, ErrRowRejected) ||
		errors.Is(err, ErrMissingTime) ||
		errors.Is(err, ErrMissingValue) ||
		errors.Is(err, ErrMissingChannel)
}

// IsQueryInput returns true if err is a malformed query window.
func IsQueryInput(err error) bool {
	return errors.Is(err, ErrInvalidQuery) ||
		errors.Is(err, ErrMissingParam) ||
		errors.Is(err, ErrInvalidTime) ||
		errors.Is(err, ErrInvalidRange)
}

// IsTransport returns true if err ended an ingest session.
func IsTransport(err error) bool {
	return errors.Is(err, ErrStreamTransport) || errors.Is(err, ErrSessionClosed)
}

// IsRecoverable reports whether ingestion continues after err.
func IsRecoverable(err error) bool {
	return IsRowValidation(err) || errors.Is(err, ErrChunkProcessing)
}

// ============================================================================
// Error to HTTP status mapping
// ============================================================================

// HTTPStatus maps an error to the status code the HTTP layer responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsQueryInput(err), Is(err, ErrUnknownChannel):
		return http.StatusBadRequest
	case Is(err, ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case Is(err, ErrNotRunning):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewQueryInput creates a query input error for a named parameter.
func NewQueryInput(param, reason string) error {
	return fmt.Errorf("%s: %s: %w", param, reason, ErrInvalidQuery)
}

// NewMissingParam creates a missing parameter error.
func NewMissingParam(param string) error {
	return fmt.Errorf("%s: %w: %w", param, ErrMissingParam, ErrInvalidQuery)
}

// NewChunkProcessing wraps a failure that happened while batching a chunk.
func NewChunkProcessing(chunk int, cause error) error {
	return fmt.Errorf("chunk %d: %w: %w", chunk, ErrChunkProcessing, cause)
}

// NewStreamTransport wraps a failure surfaced by the transport.
func NewStreamTransport(cause error) error {
	if cause == nil {
		return ErrStreamTransport
	}
	return fmt.Errorf("%w: %w", ErrStreamTransport, cause)
}

// NewValidation creates a configuration validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Reasons returns the message of every collected error.
func (v *ValidationErrors) Reasons() []string {
	out := make([]string, 0, len(v.Errors))
	for _, err := range v.Errors {
		out = append(out, err.Error())
	}
	return out
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap exposes every collected error to errors.Is/As.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
