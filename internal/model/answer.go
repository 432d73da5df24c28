package model

import (
	"time"

	"github.com/google/uuid"
)

// Answer is a student's response to one question within a session.
// Exactly one of AnswerText and SelectedOptionID is meaningful, depending on the question type.
type Answer struct {
	ID               uuid.UUID  `json:"id"`
	SessionID        uuid.UUID  `json:"session_id"`
	QuestionID       uuid.UUID  `json:"question_id"`
	AnswerText       *string    `json:"answer_text,omitempty"`
	SelectedOptionID *uuid.UUID `json:"selected_option_id,omitempty"`
	IsCorrect        *bool      `json:"is_correct,omitempty"`
	PointsEarned     *float64   `json:"points_earned,omitempty"`
	GradeOverridden  bool       `json:"grade_overridden"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Empty reports whether the answer carries no response.
func (a *Answer) Empty() bool {
	return a == nil || (a.SelectedOptionID == nil && (a.AnswerText == nil || *a.AnswerText == ""))
}

// AnswerInput is the student-supplied part of an answer.
type AnswerInput struct {
	AnswerText       *string    `json:"answer_text"`
	SelectedOptionID *uuid.UUID `json:"selected_option_id"`
}

// SaveAnswerRequest is the HTTP payload for an answer change.
type SaveAnswerRequest struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	AnswerInput
}

// OverrideGradeRequest is the payload a grader sends to overwrite an auto-grade.
type OverrideGradeRequest struct {
	PointsEarned float64 `json:"points_earned" binding:"min=0"`
	IsCorrect    *bool   `json:"is_correct"`
}
