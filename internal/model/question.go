package model

import (
	"github.com/google/uuid"
)

type QuestionType string

const (
	QuestionTypeMCQ         QuestionType = "mcq"
	QuestionTypeTrueFalse   QuestionType = "true_false"
	QuestionTypeShortAnswer QuestionType = "short_answer"
	QuestionTypeLongAnswer  QuestionType = "long_answer"
)

// UsesOptions reports whether answers to this type select an option.
func (t QuestionType) UsesOptions() bool {
	return t == QuestionTypeMCQ || t == QuestionTypeTrueFalse
}

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeMCQ, QuestionTypeTrueFalse, QuestionTypeShortAnswer, QuestionTypeLongAnswer:
		return true
	}
	return false
}

// Question represents a single exam question.
type Question struct {
	ID            uuid.UUID    `json:"id"`
	ExamID        uuid.UUID    `json:"exam_id"`
	Type          QuestionType `json:"type"`
	Text          string       `json:"text"`
	Points        float64      `json:"points"`
	OrderNumber   int          `json:"order_number"`
	CorrectAnswer *string      `json:"correct_answer,omitempty"`
	Options       []Option     `json:"options,omitempty"`
}

// Option returns the option with the given id, or nil.
func (q *Question) Option(id uuid.UUID) *Option {
	for i := range q.Options {
		if q.Options[i].ID == id {
			return &q.Options[i]
		}
	}
	return nil
}

// Option is one choice of an mcq or true_false question.
type Option struct {
	ID          uuid.UUID `json:"id"`
	QuestionID  uuid.UUID `json:"question_id"`
	Text        string    `json:"text"`
	IsCorrect   bool      `json:"is_correct"`
	OrderNumber int       `json:"order_number"`
}

// QuestionForStudent is a question without correctness data, sent to students.
type QuestionForStudent struct {
	ID          uuid.UUID          `json:"id"`
	Type        QuestionType       `json:"type"`
	Text        string             `json:"text"`
	Points      float64            `json:"points"`
	OrderNumber int                `json:"order_number"`
	Options     []OptionForStudent `json:"options,omitempty"`
}

// OptionForStudent hides is_correct.
type OptionForStudent struct {
	ID          uuid.UUID `json:"id"`
	Text        string    `json:"text"`
	OrderNumber int       `json:"order_number"`
}

// ForStudent strips correctness data from q.
func (q *Question) ForStudent() QuestionForStudent {
	out := QuestionForStudent{
		ID:          q.ID,
		Type:        q.Type,
		Text:        q.Text,
		Points:      q.Points,
		OrderNumber: q.OrderNumber,
	}
	for _, o := range q.Options {
		out.Options = append(out.Options, OptionForStudent{ID: o.ID, Text: o.Text, OrderNumber: o.OrderNumber})
	}
	return out
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	Type          string             `json:"type" binding:"required,oneof=mcq true_false short_answer long_answer"`
	Text          string             `json:"text" binding:"required,min=1,max=5000"`
	Points        float64            `json:"points" binding:"required,gt=0"`
	OrderNumber   int                `json:"order_number" binding:"min=0"`
	CorrectAnswer *string            `json:"correct_answer" binding:"omitempty,max=5000"`
	Options       []AddOptionRequest `json:"options" binding:"omitempty,dive"`
}

// AddOptionRequest is one option inside AddQuestionRequest.
type AddOptionRequest struct {
	Text        string `json:"text" binding:"required,min=1,max=1000"`
	IsCorrect   bool   `json:"is_correct"`
	OrderNumber int    `json:"order_number" binding:"min=0"`
}
