package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error is a Firestore failure tagged with the gRPC code it carried. It satisfies
// repositories.RepositoryError so services can classify it without importing the SDK.
type Error struct {
	Op   string
	Code codes.Code
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("firestore %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports a missing document.
func (e *Error) IsNotFound() bool { return e.Code == codes.NotFound }

// IsConflict reports a write rejected because of stored state or transaction contention.
func (e *Error) IsConflict() bool {
	switch e.Code {
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return true
	}
	return false
}

// IsUnavailable reports a transient backend failure worth retrying.
func (e *Error) IsUnavailable() bool {
	switch e.Code {
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return true
	}
	return false
}

// WrapError classifies err by its gRPC status. Context errors and errors that are already
// classified pass through untouched.
func WrapError(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	code := status.Code(err)
	switch code {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return fmt.Errorf("firestore %s: %w", op, context.DeadlineExceeded)
	}
	return &Error{Op: op, Code: code, Err: err}
}
