// Package serviceerror classifies failures raised by the domain services so the
// HTTP layer can choose a status code without knowing service internals.
package serviceerror

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Kind groups service failures by how a caller should react to them.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindPermission   Kind = "permission"
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindInternal     Kind = "internal"
)

// Error is a coded service failure. Code has the form "<operation>.<reason>".
type Error struct {
	kind   Kind
	code   string
	reason string
	err    error
}

// New builds an Error for the operation and reason, wrapping cause when present.
func New(kind Kind, operation, reason string, cause error) error {
	return &Error{
		kind:   kind,
		code:   fmt.Sprintf("%s.%s", operation, reason),
		reason: reason,
		err:    cause,
	}
}

func Validation(operation, reason string, cause error) error {
	return New(KindValidation, operation, reason, cause)
}

func Conflict(operation, reason string, cause error) error {
	return New(KindConflict, operation, reason, cause)
}

func Permission(operation, reason string, cause error) error {
	return New(KindPermission, operation, reason, cause)
}

func NotFound(operation, reason string, cause error) error {
	return New(KindNotFound, operation, reason, cause)
}

func Unauthorized(operation, reason string, cause error) error {
	return New(KindUnauthorized, operation, reason, cause)
}

func Internal(operation, reason string, cause error) error {
	return New(KindInternal, operation, reason, cause)
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the "<operation>.<reason>" identifier.
func (e *Error) Code() string {
	return e.code
}

// Reason returns the trailing reason segment of the code.
func (e *Error) Reason() string {
	return e.reason
}

// Kind returns the failure class.
func (e *Error) Kind() Kind {
	return e.kind
}

// Message returns the wrapped cause text, or the reason when there is no cause.
func (e *Error) Message() string {
	if e.err == nil {
		return e.reason
	}
	return e.err.Error()
}

// KindOf reports the Kind of the first *Error in err's chain. Errors that were
// never classified are internal.
func KindOf(err error) Kind {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr.kind
	}
	return KindInternal
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr, true
	}
	return nil, false
}

// IsDuplicateKey reports whether err is a unique constraint violation. Drivers
// that do not translate errors are matched on their message.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") || strings.Contains(message, "duplicate")
}
