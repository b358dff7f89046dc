package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal server error")
	ErrTransactionFailure = errors.New("transaction failure")
)

// Error is a human-readable application error tagged with one of the
// sentinel kinds above. errors.Is(err, ErrConflict) matches on the kind.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an error of the given kind with a formatted message.
func New(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound, Conflict and Invalid are shorthands for New with the matching kind.
func NotFound(format string, args ...any) error { return New(ErrNotFound, format, args...) }
func Conflict(format string, args ...any) error { return New(ErrConflict, format, args...) }
func Invalid(format string, args ...any) error  { return New(ErrInvalidInput, format, args...) }

// TransactionFailure marks err as a failed multi-entity write.
func TransactionFailure(message string, cause error) error {
	return &Error{Kind: ErrTransactionFailure, Message: message, Cause: cause}
}

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// IsDomain reports whether err carries one of the caller-facing kinds that
// must pass through a transaction boundary untouched.
func IsDomain(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidInput)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
