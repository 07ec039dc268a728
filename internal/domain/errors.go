package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an Error by how it must propagate: absorbed at the
// page boundary, absorbed at the job boundary, or surfaced to an API
// caller as a specific HTTP status.
type Kind string

const (
	KindPageOCRError     Kind = "page_ocr_error"
	KindPageRenderError  Kind = "page_render_error"
	KindPipelineError    Kind = "pipeline_error"
	KindNotFound         Kind = "not_found"
	KindConflictState    Kind = "conflict_state"
	KindGone             Kind = "gone"
	KindBadRequest       Kind = "bad_request"
	KindPersistenceError Kind = "persistence_error"
)

// Error is the domain-wide error type with context.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Common error constructors, one per Kind.
func NewPageOCRError(message string, err error) *Error {
	return NewError(KindPageOCRError, message, err)
}

func NewPageRenderError(message string, err error) *Error {
	return NewError(KindPageRenderError, message, err)
}

func NewPipelineError(message string, err error) *Error {
	return NewError(KindPipelineError, message, err)
}

func NewNotFoundError(message string) *Error {
	return NewError(KindNotFound, message, nil)
}

func NewConflictStateError(message string) *Error {
	return NewError(KindConflictState, message, nil)
}

func NewGoneError(message string) *Error {
	return NewError(KindGone, message, nil)
}

func NewBadRequestError(message string) *Error {
	return NewError(KindBadRequest, message, nil)
}

func NewPersistenceError(message string, err error) *Error {
	return NewError(KindPersistenceError, message, err)
}

// AsDomainError unwraps err to a *Error if it is (or wraps) one.
func AsDomainError(err error) (*Error, bool) {
	var de *Error
	ok := errors.As(err, &de)
	return de, ok
}
