package model

import (
	"time"

	"github.com/google/uuid"
)

// Result is the finalized score of a session. GraderID is the teacher who finalized it.
type Result struct {
	ID          uuid.UUID `json:"id"`
	SessionID   uuid.UUID `json:"session_id"`
	TotalPoints float64   `json:"total_points"`
	MaxPoints   float64   `json:"max_points"`
	Percentage  float64   `json:"percentage"`
	GradeLetter string    `json:"grade_letter"`
	GraderID    *int      `json:"grader_id,omitempty"`
	Comments    string    `json:"comments"`
	GradedAt    time.Time `json:"graded_at"`
}

// FinalizeRequest is the payload for finalizing a session's result.
type FinalizeRequest struct {
	Comments string `json:"comments" binding:"max=5000"`
}

// ResultReport is the student-facing view of a graded session.
type ResultReport struct {
	Result    *Result          `json:"result"`
	Session   *ExamSession     `json:"session"`
	ExamTitle string           `json:"exam_title"`
	Items     []ReportQuestion `json:"items,omitempty"`
}

// ReportQuestion is one reviewed question. Only populated when the exam allows review.
type ReportQuestion struct {
	Question     QuestionForStudent `json:"question"`
	Answer       *Answer            `json:"answer,omitempty"`
	IsCorrect    *bool              `json:"is_correct,omitempty"`
	PointsEarned *float64           `json:"points_earned,omitempty"`
}
