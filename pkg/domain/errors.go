package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a request or trial failed.
type ErrorKind string

const (
	KindInput           ErrorKind = "input"
	KindTrial           ErrorKind = "trial"
	KindSearchExhausted ErrorKind = "search_exhausted"
	KindArtifact        ErrorKind = "artifact"
	KindInternal        ErrorKind = "internal"
)

// WorkflowError carries the kind of a failure along with its cause.
type WorkflowError struct {
	Kind ErrorKind
	Err  error
}

func (e *WorkflowError) Error() string {
	if e.Err == nil {
		return string(e.Kind) + " error"
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *WorkflowError) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, err error) *WorkflowError {
	return &WorkflowError{Kind: kind, Err: err}
}

func Errorf(kind ErrorKind, format string, args ...any) *WorkflowError {
	return &WorkflowError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the ErrorKind of err, defaulting to KindInternal.
func KindOf(err error) ErrorKind {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a WorkflowError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var we *WorkflowError
	return errors.As(err, &we) && we.Kind == kind
}
