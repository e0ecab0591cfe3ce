package repositories

import (
	"errors"
	"fmt"
)

// ErrInvalidPageToken is returned by list operations when the page token cannot be decoded.
var ErrInvalidPageToken = errors.New("repositories: invalid page token")

// StoreErrorCode enumerates repository error causes shared by every returns store.
type StoreErrorCode string

const (
	// StoreErrorNotFound indicates the requested document does not exist.
	StoreErrorNotFound StoreErrorCode = "not_found"
	// StoreErrorAlreadyExists indicates an insert collided with an existing document.
	StoreErrorAlreadyExists StoreErrorCode = "already_exists"
	// StoreErrorVersionConflict indicates the caller wrote against a stale version.
	StoreErrorVersionConflict StoreErrorCode = "version_conflict"
	// StoreErrorAlreadySubmitted indicates a carrier booking already exists for the return.
	StoreErrorAlreadySubmitted StoreErrorCode = "already_submitted"
	// StoreErrorUnavailable indicates the backing store could not be reached.
	StoreErrorUnavailable StoreErrorCode = "unavailable"
)

// StoreError carries a machine readable code and implements RepositoryError.
type StoreError struct {
	Op      string
	Code    StoreErrorCode
	Message string
	Err     error
}

var _ RepositoryError = (*StoreError)(nil)

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the document was missing.
func (e *StoreError) IsNotFound() bool {
	return e != nil && e.Code == StoreErrorNotFound
}

// IsConflict reports whether the write conflicted with stored state.
func (e *StoreError) IsConflict() bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case StoreErrorAlreadyExists, StoreErrorVersionConflict, StoreErrorAlreadySubmitted:
		return true
	default:
		return false
	}
}

// IsUnavailable reports whether the store was unreachable.
func (e *StoreError) IsUnavailable() bool {
	return e != nil && e.Code == StoreErrorUnavailable
}

// NewStoreError constructs a typed store error.
func NewStoreError(code StoreErrorCode, message string, err error) *StoreError {
	if message == "" {
		message = string(code)
	}
	return &StoreError{Code: code, Message: message, Err: err}
}

// HasCode reports whether err is a StoreError with the given code.
func HasCode(err error, code StoreErrorCode) bool {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Code == code
	}
	return false
}
