package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidFilter = errors.New("invalid filter")
)

// NetworkError means the request could not complete or came back with a
// non-success status. Status is 0 when no response was received.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Status)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// BackendRejection means the backend answered but refused the operation.
// Detail carries the backend's own message when it sent one.
type BackendRejection struct {
	Op     string
	Status int
	Detail string
}

func (e *BackendRejection) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: rejected with status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: rejected with status %d: %s", e.Op, e.Status, e.Detail)
}

// UpdateError wraps a failed approval change.
type UpdateError struct {
	ReviewID int64
	Err      error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("update review %d: %v", e.ReviewID, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }

// RejectionDetail returns the backend-supplied message in err, or fallback.
func RejectionDetail(err error, fallback string) string {
	var rej *BackendRejection
	if errors.As(err, &rej) && rej.Detail != "" {
		return rej.Detail
	}
	return fallback
}
