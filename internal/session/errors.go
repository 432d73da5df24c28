package session

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures at the operation boundary.
type Kind string

const (
	// LoadFailure: exam, questions or session unavailable. Fatal to the attempt.
	LoadFailure Kind = "load_failure"
	// PersistFailure: an autosave tick or grade write failed. Retried on the next cycle.
	PersistFailure Kind = "persist_failure"
	// SubmitFailure: the terminal lock write failed. The session stays in progress.
	SubmitFailure Kind = "submit_failure"
	// ValidationFailure: input rejected before any write.
	ValidationFailure Kind = "validation_failure"
)

// Error is an engine failure tagged with its Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of err, or "" when err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Domain errors
var (
	ErrSessionLocked   = errors.New("exam session is locked")
	ErrSubmitInFlight  = errors.New("a submit is already in flight")
	ErrNoPendingSubmit = errors.New("submit was not requested")
	ErrExamNotOpen     = errors.New("exam is not open yet")
	ErrExamClosed      = errors.New("exam is closed")
	ErrUnknownQuestion = errors.New("question does not belong to this exam")
	ErrInvalidAnswer   = errors.New("answer does not match the question type")
	ErrRuntimeClosed   = errors.New("exam session runtime is closed")
)
