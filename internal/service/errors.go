package service

import "errors"

// Domain Errors
var (
	ErrNotExamAuthor   = errors.New("not the author of this exam")
	ErrExamInUse       = errors.New("exam already has sessions and cannot be changed")
	ErrSessionNotFound = errors.New("exam session not found")
	ErrNotLocked       = errors.New("exam session is still in progress")
	ErrAlreadyGraded   = errors.New("exam session is already graded")
	ErrPointsRange     = errors.New("points out of range")
	ErrGradesPending   = errors.New("some answers still need a grade")
	ErrResultNotReady  = errors.New("result is not available yet")
	ErrConfirmRequired = errors.New("submit must be confirmed")
)
