package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// fakeDB backs every repository interface the services consume.
type fakeDB struct {
	mu        sync.Mutex
	exams     map[uuid.UUID]*model.Exam
	questions map[uuid.UUID][]model.Question
	sessions  map[uuid.UUID]*model.ExamSession
	answers   map[uuid.UUID]*model.Answer
	results   map[uuid.UUID]*model.Result
	cheats    map[uuid.UUID][]model.CheatEvent

	graded      []uuid.UUID
	autoGrades  []repository.GradeUpdate
	invalidated []uuid.UUID
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		exams:     make(map[uuid.UUID]*model.Exam),
		questions: make(map[uuid.UUID][]model.Question),
		sessions:  make(map[uuid.UUID]*model.ExamSession),
		answers:   make(map[uuid.UUID]*model.Answer),
		results:   make(map[uuid.UUID]*model.Result),
		cheats:    make(map[uuid.UUID][]model.CheatEvent),
	}
}

func (db *fakeDB) addExam(e *model.Exam, qs ...model.Question) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	for i := range qs {
		qs[i].ExamID = e.ID
	}
	db.exams[e.ID] = e
	db.questions[e.ID] = qs
}

func (db *fakeDB) addSession(s *model.ExamSession) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	db.sessions[s.ID] = s
}

func (db *fakeDB) addAnswer(a model.Answer) uuid.UUID {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	db.answers[a.ID] = &a
	return a.ID
}

// exams

type fakeExams struct{ *fakeDB }

func (f fakeExams) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f fakeExams) ListByTeacher(_ context.Context, teacherID int) ([]model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Exam
	for _, e := range f.exams {
		if e.TeacherID == teacherID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f fakeExams) ListVisible(_ context.Context, now, horizon time.Time) ([]model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Exam
	for _, e := range f.exams {
		if e.ClosesAt.After(now) && e.OpensAt.Before(horizon) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f fakeExams) Create(_ context.Context, e *model.Exam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = uuid.New()
	f.exams[e.ID] = e
	return nil
}

// questions

type fakeQuestions struct{ *fakeDB }

func (f fakeQuestions) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Question(nil), f.questions[examID]...), nil
}

func (f fakeQuestions) Create(_ context.Context, q *model.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.questions[q.ExamID] {
		if existing.OrderNumber == q.OrderNumber {
			return repository.ErrConflict
		}
	}
	q.ID = uuid.New()
	f.questions[q.ExamID] = append(f.questions[q.ExamID], *q)
	return nil
}

// sessions

type fakeSessions struct{ *fakeDB }

func (f fakeSessions) GetByID(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f fakeSessions) ListByStudent(_ context.Context, studentID int) ([]model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ExamSession
	for _, s := range f.sessions {
		if s.StudentID == studentID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f fakeSessions) ListByExam(_ context.Context, examID uuid.UUID) ([]model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ExamSession
	for _, s := range f.sessions {
		if s.ExamID == examID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f fakeSessions) CountByExam(ctx context.Context, examID uuid.UUID) (int, error) {
	list, err := f.ListByExam(ctx, examID)
	return len(list), err
}

func (f fakeSessions) MarkGraded(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.Status = model.SessionStatusGraded
	f.graded = append(f.graded, id)
	return nil
}

// answers

type fakeAnswers struct{ *fakeDB }

func (f fakeAnswers) GetByID(_ context.Context, id uuid.UUID) (*model.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.answers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f fakeAnswers) ListBySession(_ context.Context, sessionID uuid.UUID) ([]model.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Answer
	for _, a := range f.answers {
		if a.SessionID == sessionID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f fakeAnswers) ApplyAutoGrades(_ context.Context, grades []repository.GradeUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoGrades = append(f.autoGrades, grades...)
	for _, g := range grades {
		for _, a := range f.answers {
			if a.SessionID == g.SessionID && a.QuestionID == g.QuestionID && !a.GradeOverridden {
				correct, points := g.IsCorrect, g.PointsEarned
				a.IsCorrect, a.PointsEarned = &correct, &points
			}
		}
	}
	return nil
}

func (f fakeAnswers) Override(_ context.Context, id uuid.UUID, points float64, isCorrect *bool) (*model.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.answers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	a.PointsEarned = &points
	a.IsCorrect = isCorrect
	a.GradeOverridden = true
	cp := *a
	return &cp, nil
}

// results

type fakeResults struct{ *fakeDB }

func (f fakeResults) Upsert(_ context.Context, res *model.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	res.ID = uuid.New()
	cp := *res
	f.results[res.SessionID] = &cp
	return nil
}

func (f fakeResults) GetBySession(_ context.Context, sessionID uuid.UUID) (*model.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.results[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// cheats, cache and monitor

type fakeCheats struct{ *fakeDB }

func (f fakeCheats) ListBySession(_ context.Context, sessionID uuid.UUID) ([]model.CheatEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cheats[sessionID], nil
}

type fakeCache struct{ *fakeDB }

func (f fakeCache) InvalidateExam(_ context.Context, examID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, examID)
	return nil
}

type fakeMonitor struct {
	answered map[uuid.UUID]int
	cheats   map[uuid.UUID]int
}

func (f fakeMonitor) AnsweredCounts(context.Context, uuid.UUID) (map[uuid.UUID]int, error) {
	return f.answered, nil
}

func (f fakeMonitor) CheatCounts(context.Context, uuid.UUID) (map[uuid.UUID]int, error) {
	return f.cheats, nil
}

func strPtr(s string) *string { return &s }
