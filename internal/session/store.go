package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Store is the persistence the engine needs. Lookups that find nothing return
// repository.ErrNotFound.
type Store interface {
	AnswerWriter

	GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
	ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)

	FindSession(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error)
	// CreateSession inserts a new in-progress session. When a concurrent insert for the
	// same (exam, student) won, it returns that row instead.
	CreateSession(ctx context.Context, examID uuid.UUID, studentID int, startedAt time.Time) (*model.ExamSession, error)
	ListAnswers(ctx context.Context, sessionID uuid.UUID) ([]model.Answer, error)

	RecordWarning(ctx context.Context, sessionID uuid.UUID, count int, at time.Time) error
	// LockSession moves an in-progress session to a terminal status. changed is false when
	// the session was already locked; the returned row is the current one either way.
	LockSession(ctx context.Context, sessionID uuid.UUID, status model.SessionStatus, reason model.LockReason, at time.Time) (sess *model.ExamSession, changed bool, err error)
	// ListExpiredSessions returns in-progress sessions whose deadline is at or before now.
	ListExpiredSessions(ctx context.Context, now time.Time) ([]model.ExamSession, error)
}

// CheatRecorder receives every signal for the audit log.
type CheatRecorder interface {
	RecordCheat(ctx context.Context, ev model.CheatEvent) error
}

// GradeQueue schedules auto-grading of a locked session.
type GradeQueue interface {
	EnqueueGrade(ctx context.Context, sessionID uuid.UUID) error
}
