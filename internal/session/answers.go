package session

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// AnswerBook is the in-memory answer set of one session, keyed by question.
// Every mutation bumps the version so the autosaver can skip clean snapshots.
type AnswerBook struct {
	mu        sync.RWMutex
	sessionID uuid.UUID
	questions map[uuid.UUID]*model.Question
	answers   map[uuid.UUID]model.Answer
	version   uint64
}

// NewAnswerBook indexes questions and seeds the book with previously saved answers.
func NewAnswerBook(sessionID uuid.UUID, questions []model.Question, saved []model.Answer) *AnswerBook {
	b := &AnswerBook{
		sessionID: sessionID,
		questions: make(map[uuid.UUID]*model.Question, len(questions)),
		answers:   make(map[uuid.UUID]model.Answer, len(saved)),
	}
	for i := range questions {
		b.questions[questions[i].ID] = &questions[i]
	}
	for _, a := range saved {
		if _, ok := b.questions[a.QuestionID]; ok {
			b.answers[a.QuestionID] = a
		}
	}
	return b
}

// Set validates in against the question type and replaces the stored answer.
// An input with neither field set clears the response.
func (b *AnswerBook) Set(questionID uuid.UUID, in model.AnswerInput) (model.Answer, error) {
	q, ok := b.questions[questionID]
	if !ok {
		return model.Answer{}, ErrUnknownQuestion
	}

	a := model.Answer{SessionID: b.sessionID, QuestionID: questionID}
	switch {
	case q.Type.UsesOptions():
		if in.AnswerText != nil && strings.TrimSpace(*in.AnswerText) != "" {
			return model.Answer{}, fmt.Errorf("%w: %s expects selected_option_id", ErrInvalidAnswer, q.Type)
		}
		if in.SelectedOptionID != nil {
			if q.Option(*in.SelectedOptionID) == nil {
				return model.Answer{}, fmt.Errorf("%w: unknown option", ErrInvalidAnswer)
			}
			id := *in.SelectedOptionID
			a.SelectedOptionID = &id
		}
	default:
		if in.SelectedOptionID != nil {
			return model.Answer{}, fmt.Errorf("%w: %s expects answer_text", ErrInvalidAnswer, q.Type)
		}
		if in.AnswerText != nil {
			text := *in.AnswerText
			a.AnswerText = &text
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.answers[questionID]; ok {
		a.ID = prev.ID
	}
	b.answers[questionID] = a
	b.version++
	return a, nil
}

// Get returns the answer for a question, if any.
func (b *AnswerBook) Get(questionID uuid.UUID) (model.Answer, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.answers[questionID]
	return a, ok
}

// Snapshot returns a copy of all answers ordered by question id, and the book version.
func (b *AnswerBook) Snapshot() ([]model.Answer, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.Answer, 0, len(b.answers))
	for _, a := range b.answers {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QuestionID.String() < out[j].QuestionID.String()
	})
	return out, b.version
}

// Map returns answers keyed by question id string, the shape the view restores from.
func (b *AnswerBook) Map() map[string]model.Answer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]model.Answer, len(b.answers))
	for qid, a := range b.answers {
		out[qid.String()] = a
	}
	return out
}

// Answered counts questions with a non-empty response.
func (b *AnswerBook) Answered() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, a := range b.answers {
		if !a.Empty() {
			n++
		}
	}
	return n
}

// Total is the number of questions in the exam.
func (b *AnswerBook) Total() int {
	return len(b.questions)
}
