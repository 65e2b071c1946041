package search

import (
	"errors"
	"fmt"
)

// ErrOutOfDomain is wrapped by DomainError when the state itself rejects a value
var ErrOutOfDomain = errors.New("value outside parameter domain")

// LaunchError indicates the evaluation procedure could not run or exited abnormally.
// The artifact is discarded.
type LaunchError struct {
	Artifact string
	Err      error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("evaluation launch failed for %s: %v", e.Artifact, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// TraceError indicates the artifact was missing or could not be scored.
// The artifact is left in place for inspection.
type TraceError struct {
	Artifact string
	Err      error
}

func (e *TraceError) Error() string {
	return fmt.Sprintf("trace %s rejected: %v", e.Artifact, e.Err)
}

func (e *TraceError) Unwrap() error {
	return e.Err
}

// DomainError is a fatal observation outside a parameter's declared range
type DomainError struct {
	Parameter string
	Value     float64
	Low       float64
	High      float64
	Err       error
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("parameter %s: value %g outside [%g, %g]: %v", e.Parameter, e.Value, e.Low, e.High, e.Err)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must abort the search
func IsFatal(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}
