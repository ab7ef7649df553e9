package services

import "fmt"

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

// UpstreamError wraps a failure of a third-party API (generation provider,
// YouTube, Google OAuth).
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string { return fmt.Sprintf("%s: %v", e.Service, e.Err) }

func (e *UpstreamError) Unwrap() error { return e.Err }

// NotLinkedError means the user has no usable publishing credential.
type NotLinkedError struct{ UserID string }

func (e *NotLinkedError) Error() string {
	return "No linked YouTube account for this user"
}

// TransientIOError is a network or storage hiccup. It is never retried
// internally; the client may retry the request.
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *TransientIOError) Unwrap() error { return e.Err }

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }
