package domain

import (
	"errors"
	"fmt"
)

// Error codes forming the engine's failure taxonomy.
const (
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeValidation         = "validation"
	CodeDataIntegrity      = "data_integrity"
	CodeExternalDependency = "external_dependency"
)

// Error is a coded application error. Code drives caller behavior (retry,
// reload, abort); Message is safe to surface.
type Error struct {
	Code     string
	Message  string
	Internal error
}

func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Internal
}

// NewNotFound reports an absent entity, edge or time-series record.
func NewNotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewConflict reports an optimistic-version mismatch; the caller must
// reload and retry.
func NewConflict(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// NewValidation reports an entity-specific invariant violation during
// prepare; no partial write has occurred.
func NewValidation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewDataIntegrity reports prior corruption, e.g. more than one containment
// edge pointing into an entity. Never retried.
func NewDataIntegrity(format string, args ...any) *Error {
	return &Error{Code: CodeDataIntegrity, Message: fmt.Sprintf(format, args...)}
}

// NewExternalDependency reports an unreachable collaborator (search index,
// secrets backend) wrapping the underlying cause.
func NewExternalDependency(cause error, format string, args ...any) *Error {
	return &Error{Code: CodeExternalDependency, Message: fmt.Sprintf(format, args...), Internal: cause}
}

func hasCode(err error, code string) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsNotFound(err error) bool           { return hasCode(err, CodeNotFound) }
func IsConflict(err error) bool           { return hasCode(err, CodeConflict) }
func IsValidation(err error) bool         { return hasCode(err, CodeValidation) }
func IsDataIntegrity(err error) bool      { return hasCode(err, CodeDataIntegrity) }
func IsExternalDependency(err error) bool { return hasCode(err, CodeExternalDependency) }
