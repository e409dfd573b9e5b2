// Package errors defines the error taxonomy shared by the session lifecycle,
// the catalog, and the transports that expose them.
//
// Every error returned by a lifecycle or catalog operation belongs to exactly one
// kind:
//   - ConflictError: the operation collides with current state (an active session
//     already exists, a slug is taken, a session is no longer active)
//   - ValidationError: the input was rejected before any write
//   - NotFoundError: the addressed session, agent or template does not exist
//   - StorageError: the store rejected a read or write
//   - CompensationError: a saga rollback failed and persisted state is inconsistent
//
// Check a kind with errors.Is against the sentinel (ErrConflict, ...) or extract the
// concrete type with errors.As. KindOf classifies an arbitrary error for transport
// mapping.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-exported so callers can import only this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Kind sentinels. Each concrete error type reports Is(kind) == true for its own kind.
var (
	ErrConflict     = New("conflict")
	ErrValidation   = New("validation failed")
	ErrNotFound     = New("not found")
	ErrStorage      = New("storage error")
	ErrCompensation = New("compensation failed")
)

// Kind names an error category; the string is used on the wire.
type Kind string

const (
	KindUnknown      Kind = "internal"
	KindConflict     Kind = "conflict"
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindStorage      Kind = "storage"
	KindCompensation Kind = "compensation_failed"
)

// KindOf classifies err. Compensation is checked first because a CompensationError
// wraps the storage error that triggered the rollback.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrCompensation):
		return KindCompensation
	case Is(err, ErrConflict):
		return KindConflict
	case Is(err, ErrValidation):
		return KindValidation
	case Is(err, ErrNotFound):
		return KindNotFound
	case Is(err, ErrStorage):
		return KindStorage
	default:
		return KindUnknown
	}
}

// ConflictError reports that the operation collides with existing state.
type ConflictError struct {
	Message  string
	Resource string
	ID       string
	Cause    error
}

// NewConflictError returns a ConflictError for the given resource.
func NewConflictError(resource, message string) *ConflictError {
	return &ConflictError{Resource: resource, Message: message}
}

// WithID records the id of the conflicting resource.
func (e *ConflictError) WithID(id string) *ConflictError {
	e.ID = id
	return e
}

// WithCause records the underlying error.
func (e *ConflictError) WithCause(cause error) *ConflictError {
	e.Cause = cause
	return e
}

func (e *ConflictError) Error() string {
	var b strings.Builder
	b.WriteString(e.Resource)
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.ID != "" {
		fmt.Fprintf(&b, " (id: %s)", e.ID)
	}
	return b.String()
}

func (e *ConflictError) Unwrap() error { return e.Cause }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// ValidationError reports rejected input. No write has happened when it is returned.
type ValidationError struct {
	Message string
	Field   string
	Value   any
	Cause   error
}

// NewValidationError returns a ValidationError with the given message.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// WithField records the offending field name.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue records the offending value.
func (e *ValidationError) WithValue(v any) *ValidationError {
	e.Value = v
	return e
}

// WithCause records the underlying error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.Cause = cause
	return e
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return "invalid input: " + e.Message
}

func (e *ValidationError) Unwrap() error { return e.Cause }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a missing session, agent or template.
type NotFoundError struct {
	Resource string
	ID       string
}

// NewNotFoundError returns a NotFoundError for resource/id.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StorageError wraps an error returned by the store. It is never retried.
type StorageError struct {
	Op    string
	Cause error
}

// NewStorageError wraps cause as a storage failure of op.
func NewStorageError(op string, cause error) *StorageError {
	return &StorageError{Op: op, Cause: cause}
}

func (e *StorageError) Error() string {
	if e.Cause == nil {
		return "storage: " + e.Op
	}
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// CompensationError reports that a rollback step failed after a forward step
// failed. Persisted state is inconsistent; Orphan identifies what was left behind.
type CompensationError struct {
	Step        string // forward step that failed
	Orphan      string // id of the record the rollback could not remove
	Cause       error  // forward failure
	RollbackErr error  // rollback failure
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation failed after %s: %v; rollback: %v (orphaned %s)", e.Step, e.Cause, e.RollbackErr, e.Orphan)
}

// Unwrap exposes both the forward and the rollback failure.
func (e *CompensationError) Unwrap() []error {
	var out []error
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	if e.RollbackErr != nil {
		out = append(out, e.RollbackErr)
	}
	return out
}

func (e *CompensationError) Is(target error) bool { return target == ErrCompensation }

// IsUserFacing reports whether err can be shown to a caller verbatim.
func IsUserFacing(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindValidation, KindNotFound:
		return true
	default:
		return false
	}
}
