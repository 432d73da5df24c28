package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam is the configuration of a timed exam. It is immutable while sessions are running.
type Exam struct {
	ID              uuid.UUID `json:"id"`
	TeacherID       int       `json:"teacher_id"`
	Title           string    `json:"title"`
	DurationMinutes int       `json:"duration_minutes"`
	OpensAt         time.Time `json:"opens_at"`
	ClosesAt        time.Time `json:"closes_at"`
	AntiCheat       bool      `json:"anti_cheat"`
	MaxWarnings     int       `json:"max_warnings"`
	AllowReview     bool      `json:"allow_review"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Duration returns the allotted time as a time.Duration.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// IsOpenAt reports whether new sessions may be started at t.
func (e *Exam) IsOpenAt(t time.Time) bool {
	return !t.Before(e.OpensAt) && t.Before(e.ClosesAt)
}

// CreateExamRequest is the payload for authoring a new exam.
type CreateExamRequest struct {
	Title           string    `json:"title" binding:"required,min=3,max=255"`
	DurationMinutes int       `json:"duration_minutes" binding:"required,min=1,max=480"`
	OpensAt         time.Time `json:"opens_at" binding:"required"`
	ClosesAt        time.Time `json:"closes_at" binding:"required,gtfield=OpensAt"`
	AntiCheat       bool      `json:"anti_cheat"`
	MaxWarnings     int       `json:"max_warnings" binding:"min=0,max=100"`
	AllowReview     bool      `json:"allow_review"`
}

// ExamPayload is what a student receives when a session starts or resumes.
type ExamPayload struct {
	ExamID      uuid.UUID            `json:"exam_id"`
	Title       string               `json:"title"`
	Duration    int                  `json:"duration_minutes"`
	AntiCheat   bool                 `json:"anti_cheat"`
	MaxWarnings int                  `json:"max_warnings"`
	Questions   []QuestionForStudent `json:"questions"`
}
