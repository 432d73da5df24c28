// Package scoring computes auto-grades and aggregates them into a scorecard.
//
// Auto-grading is advisory. A grader override on an answer always wins over the
// computed grade, and nothing here writes to the store.
package scoring

import (
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Grade is the outcome of grading one question.
type Grade struct {
	QuestionID uuid.UUID `json:"question_id"`
	// Gradable is false for a free-text question without a model answer.
	Gradable     bool     `json:"gradable"`
	IsCorrect    *bool    `json:"is_correct,omitempty"`
	PointsEarned *float64 `json:"points_earned,omitempty"`
	Overridden   bool     `json:"overridden"`
}

// GradeAnswer auto-grades one answer. A nil or empty answer scores zero and is incorrect.
func GradeAnswer(q *model.Question, a *model.Answer) Grade {
	g := Grade{QuestionID: q.ID}

	if !q.Type.UsesOptions() && q.CorrectAnswer == nil {
		return g
	}
	g.Gradable = true

	correct := false
	if !a.Empty() {
		switch {
		case q.Type.UsesOptions():
			if a.SelectedOptionID != nil {
				if opt := q.Option(*a.SelectedOptionID); opt != nil {
					correct = opt.IsCorrect
				}
			}
		default:
			if a.AnswerText != nil {
				correct = normalize(*a.AnswerText) == normalize(*q.CorrectAnswer)
			}
		}
	}

	points := 0.0
	if correct {
		points = q.Points
	}
	g.IsCorrect = &correct
	g.PointsEarned = &points
	return g
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Effective returns the grade that counts: the grader's override when present,
// otherwise the auto-grade.
func Effective(q *model.Question, a *model.Answer) Grade {
	if a != nil && a.GradeOverridden && a.PointsEarned != nil {
		return Grade{
			QuestionID:   q.ID,
			Gradable:     true,
			IsCorrect:    a.IsCorrect,
			PointsEarned: a.PointsEarned,
			Overridden:   true,
		}
	}
	return GradeAnswer(q, a)
}

// Item is one graded question of a scorecard.
type Item struct {
	Question *model.Question `json:"question"`
	Answer   *model.Answer   `json:"answer,omitempty"`
	Grade    Grade           `json:"grade"`
}

// Scorecard aggregates the grades of one session.
type Scorecard struct {
	Items       []Item  `json:"items"`
	TotalPoints float64 `json:"total_points"`
	MaxPoints   float64 `json:"max_points"`
	Percentage  float64 `json:"percentage"`
	GradeLetter string  `json:"grade_letter"`
	// Pending counts questions that still need a human grade.
	Pending int `json:"pending"`
}

// Score grades every question against the session's answers.
func Score(questions []model.Question, answers []model.Answer) Scorecard {
	byQuestion := make(map[uuid.UUID]*model.Answer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	var sc Scorecard
	for i := range questions {
		q := &questions[i]
		a := byQuestion[q.ID]
		g := Effective(q, a)

		sc.MaxPoints += q.Points
		if g.PointsEarned != nil {
			sc.TotalPoints += *g.PointsEarned
		} else {
			sc.Pending++
		}
		sc.Items = append(sc.Items, Item{Question: q, Answer: a, Grade: g})
	}

	sc.Percentage = Percentage(sc.TotalPoints, sc.MaxPoints)
	sc.GradeLetter = Letter(sc.Percentage)
	return sc
}

// Percentage returns 100*total/max rounded to two decimals, or 0 when max is 0.
func Percentage(total, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return math.Round(100*total/max*100) / 100
}

// Letter maps a percentage to a grade letter. Each band includes its lower bound.
func Letter(pct float64) string {
	switch {
	case pct >= 90:
		return "A"
	case pct >= 80:
		return "B"
	case pct >= 70:
		return "C"
	case pct >= 60:
		return "D"
	default:
		return "F"
	}
}
