package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Catalog reads exam configuration. ExamCache implements it over the repositories.
type Catalog interface {
	GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
	ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// Store bundles the repositories the session engine reads and writes.
type Store struct {
	Catalog  Catalog
	Sessions *ExamSessionRepository
	Answers  *AnswerRepository
}

// NewStore creates a Store over the given repositories.
func NewStore(catalog Catalog, sessions *ExamSessionRepository, answers *AnswerRepository) *Store {
	return &Store{Catalog: catalog, Sessions: sessions, Answers: answers}
}

func (s *Store) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	return s.Catalog.GetExam(ctx, examID)
}

func (s *Store) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	return s.Catalog.ListQuestions(ctx, examID)
}

func (s *Store) FindSession(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	return s.Sessions.GetByExamAndStudent(ctx, examID, studentID)
}

func (s *Store) CreateSession(ctx context.Context, examID uuid.UUID, studentID int, startedAt time.Time) (*model.ExamSession, error) {
	return s.Sessions.Create(ctx, examID, studentID, startedAt)
}

func (s *Store) ListAnswers(ctx context.Context, sessionID uuid.UUID) ([]model.Answer, error) {
	return s.Answers.ListBySession(ctx, sessionID)
}

func (s *Store) UpsertAnswers(ctx context.Context, sessionID uuid.UUID, answers []model.Answer) error {
	return s.Answers.UpsertBatch(ctx, sessionID, answers)
}

func (s *Store) RecordWarning(ctx context.Context, sessionID uuid.UUID, count int, at time.Time) error {
	return s.Sessions.RecordWarning(ctx, sessionID, count, at)
}

func (s *Store) LockSession(ctx context.Context, sessionID uuid.UUID, status model.SessionStatus, reason model.LockReason, at time.Time) (*model.ExamSession, bool, error) {
	return s.Sessions.Lock(ctx, sessionID, status, reason, at)
}

func (s *Store) ListExpiredSessions(ctx context.Context, now time.Time) ([]model.ExamSession, error) {
	return s.Sessions.ListExpired(ctx, now)
}
