package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory Store with failure injection.
type memStore struct {
	mu        sync.Mutex
	exams     map[uuid.UUID]*model.Exam
	questions map[uuid.UUID][]model.Question
	sessions  map[uuid.UUID]*model.ExamSession
	answers   map[uuid.UUID]map[uuid.UUID]model.Answer

	upsertCalls int
	lockCalls   int
	lockWrites  int

	failUpserts int
	failLocks   int
	lockGate    chan struct{}
	failExam    bool
}

func newMemStore() *memStore {
	return &memStore{
		exams:     make(map[uuid.UUID]*model.Exam),
		questions: make(map[uuid.UUID][]model.Question),
		sessions:  make(map[uuid.UUID]*model.ExamSession),
		answers:   make(map[uuid.UUID]map[uuid.UUID]model.Answer),
	}
}

func (s *memStore) addExam(e *model.Exam, qs []model.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exams[e.ID] = e
	for i := range qs {
		qs[i].ExamID = e.ID
	}
	s.questions[e.ID] = qs
}

func (s *memStore) addSession(sess *model.ExamSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
}

func (s *memStore) session(id uuid.UUID) model.ExamSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.sessions[id]
}

func (s *memStore) counts() (upserts, lockCalls, lockWrites int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertCalls, s.lockCalls, s.lockWrites
}

func (s *memStore) stored(sessionID uuid.UUID) map[uuid.UUID]model.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]model.Answer)
	for k, v := range s.answers[sessionID] {
		out[k] = v
	}
	return out
}

func (s *memStore) GetExam(_ context.Context, examID uuid.UUID) (*model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failExam {
		return nil, errStoreDown
	}
	e, ok := s.exams[examID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) ListQuestions(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Question(nil), s.questions[examID]...), nil
}

func (s *memStore) FindSession(_ context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ExamID == examID && sess.StudentID == studentID {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) CreateSession(_ context.Context, examID uuid.UUID, studentID int, startedAt time.Time) (*model.ExamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ExamID == examID && sess.StudentID == studentID {
			cp := *sess
			return &cp, nil
		}
	}
	sess := &model.ExamSession{
		ID:        uuid.New(),
		ExamID:    examID,
		StudentID: studentID,
		StartedAt: startedAt,
		Status:    model.SessionStatusInProgress,
	}
	s.sessions[sess.ID] = sess
	cp := *sess
	return &cp, nil
}

func (s *memStore) ListAnswers(_ context.Context, sessionID uuid.UUID) ([]model.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Answer
	for _, a := range s.answers[sessionID] {
		out = append(out, a)
	}
	return out, nil
}

func (s *memStore) UpsertAnswers(_ context.Context, sessionID uuid.UUID, answers []model.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.failUpserts > 0 {
		s.failUpserts--
		return errStoreDown
	}
	if sess, ok := s.sessions[sessionID]; ok && sess.IsLocked {
		return repository.ErrLocked
	}
	if s.answers[sessionID] == nil {
		s.answers[sessionID] = make(map[uuid.UUID]model.Answer)
	}
	for _, a := range answers {
		if prev, ok := s.answers[sessionID][a.QuestionID]; ok {
			a.ID = prev.ID
		} else {
			a.ID = uuid.New()
		}
		s.answers[sessionID][a.QuestionID] = a
	}
	return nil
}

func (s *memStore) RecordWarning(_ context.Context, sessionID uuid.UUID, count int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	if count > sess.WarningCount {
		sess.WarningCount = count
	}
	sess.LastWarningAt = &at
	return nil
}

func (s *memStore) LockSession(_ context.Context, sessionID uuid.UUID, status model.SessionStatus, reason model.LockReason, at time.Time) (*model.ExamSession, bool, error) {
	s.mu.Lock()
	gate := s.lockGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockCalls++
	if s.failLocks > 0 {
		s.failLocks--
		return nil, false, errStoreDown
	}
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, false, repository.ErrNotFound
	}
	if sess.Status != model.SessionStatusInProgress {
		cp := *sess
		return &cp, false, nil
	}
	s.lockWrites++
	sess.Status = status
	sess.LockReason = &reason
	sess.SubmittedAt = &at
	sess.IsLocked = true
	cp := *sess
	return &cp, true, nil
}

func (s *memStore) ListExpiredSessions(_ context.Context, now time.Time) ([]model.ExamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ExamSession
	for _, sess := range s.sessions {
		exam := s.exams[sess.ExamID]
		if sess.Status == model.SessionStatusInProgress && !sess.StartedAt.Add(exam.Duration()).After(now) {
			out = append(out, *sess)
		}
	}
	return out, nil
}

// recorders

type memCheats struct {
	mu     sync.Mutex
	events []model.CheatEvent
}

func (c *memCheats) RecordCheat(_ context.Context, ev model.CheatEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *memCheats) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

type memGrades struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (g *memGrades) EnqueueGrade(_ context.Context, id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ids = append(g.ids, id)
	return nil
}

func (g *memGrades) len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ids)
}
