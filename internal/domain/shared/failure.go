package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailureKind classifies why a remote write did not go through. It decides
// whether a queued entry is retried later or dropped.
type FailureKind string

const (
	FailureTransient       FailureKind = "TRANSIENT"
	FailureVersionConflict FailureKind = "VERSION_CONFLICT"
	FailurePrecondition    FailureKind = "PRECONDITION"
	FailurePermission      FailureKind = "PERMISSION"
	FailureValidation      FailureKind = "VALIDATION"
)

// IsPermanent reports whether retrying the same request can never succeed
func (k FailureKind) IsPermanent() bool {
	return k != FailureTransient
}

// RemoteError is a classified failure returned by the server client
type RemoteError struct {
	Kind       FailureKind
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote %s (%d %s): %s: %v", e.Kind, e.StatusCode, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("remote %s (%d %s): %s", e.Kind, e.StatusCode, e.Code, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// ClassifyFailure maps any error from a replay attempt to a FailureKind.
// Unknown errors are transient: keeping an entry is recoverable, dropping is not.
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return ""
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureTransient
	}
	switch {
	case errors.Is(err, ErrConcurrencyConflict):
		return FailureVersionConflict
	case errors.Is(err, ErrPreconditionFailed), errors.Is(err, ErrInvalidState), errors.Is(err, ErrNotFound):
		return FailurePrecondition
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrForbidden):
		return FailurePermission
	case errors.Is(err, ErrInvalidInput):
		return FailureValidation
	}
	return FailureTransient
}

// FailureCode extracts a machine-readable code for a failure, if any
func FailureCode(err error) string {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Code
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
