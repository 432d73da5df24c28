package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusInProgress    SessionStatus = "in_progress"
	SessionStatusSubmitted     SessionStatus = "submitted"
	SessionStatusAutoSubmitted SessionStatus = "auto_submitted"
	SessionStatusBlocked       SessionStatus = "blocked"
	// SessionStatusGraded marks a locked session whose result has been finalized.
	SessionStatusGraded SessionStatus = "graded"
)

// Terminal reports whether the status no longer accepts student mutations.
func (s SessionStatus) Terminal() bool {
	return s != SessionStatusInProgress
}

// LockReason records which path locked the session.
type LockReason string

const (
	LockReasonManual         LockReason = "manual"
	LockReasonTimeExpired    LockReason = "time_expired"
	LockReasonMaxWarnings    LockReason = "max_warnings"
	LockReasonAdministrative LockReason = "administrative"
)

// ExamSession is one student's single attempt at one exam.
type ExamSession struct {
	ID            uuid.UUID     `json:"id"`
	ExamID        uuid.UUID     `json:"exam_id"`
	StudentID     int           `json:"student_id"`
	StartedAt     time.Time     `json:"started_at"`
	SubmittedAt   *time.Time    `json:"submitted_at,omitempty"`
	Status        SessionStatus `json:"status"`
	LockReason    *LockReason   `json:"lock_reason,omitempty"`
	WarningCount  int           `json:"warning_count"`
	LastWarningAt *time.Time    `json:"last_warning_at,omitempty"`
	IsLocked      bool          `json:"is_locked"`
}

// Deadline returns the instant the session runs out of time.
func (s *ExamSession) Deadline(durationMinutes int) time.Time {
	return s.StartedAt.Add(time.Duration(durationMinutes) * time.Minute)
}

// ExamSessionState is the snapshot a reconnecting view needs to restore itself.
type ExamSessionState struct {
	Session          *ExamSession      `json:"session"`
	Answers          map[string]Answer `json:"answers"`
	RemainingSeconds int               `json:"remaining_seconds"`
	Remaining        string            `json:"remaining"`
	Warnings         WarningSnapshot   `json:"warnings"`
	SaveStatus       string            `json:"save_status"`
	Payload          *ExamPayload      `json:"exam,omitempty"`
	Suppress         []string          `json:"suppress,omitempty"`
}

// WarningSnapshot is the view-facing warning counter state.
type WarningSnapshot struct {
	Count        int  `json:"count"`
	Max          int  `json:"max"`
	ShowModalNow bool `json:"show_modal_now"`
}

// SubmitRequest is the payload for a manual HTTP submit.
type SubmitRequest struct {
	Confirm bool `json:"confirm"`
}
