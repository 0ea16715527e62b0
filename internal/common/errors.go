package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")

	// ErrAllExtractionsFailed marks a batch where every submitted file failed.
	// A batch with at least one successful file is a partial failure and is
	// reported through the result, not through this error.
	ErrAllExtractionsFailed = errors.New("all extractions failed")

	// ErrStaleBatch marks results from a superseded processing run. They are
	// discarded rather than merged into the working set.
	ErrStaleBatch = errors.New("stale batch result discarded")
)

// ExtractionError is a per-file extraction failure. One file failing never
// aborts its siblings in the same batch.
type ExtractionError struct {
	File  string
	Cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %q: %v", e.File, e.Cause)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

func NewExtractionError(file string, cause error) *ExtractionError {
	return &ExtractionError{File: file, Cause: cause}
}

// ExportError is a recoverable export failure. The in-memory working set is
// left untouched when it occurs.
type ExportError struct {
	Cause error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export failed: %v", e.Cause)
}

func (e *ExportError) Unwrap() error {
	return e.Cause
}

func NewExportError(cause error) *ExportError {
	return &ExportError{Cause: cause}
}

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
