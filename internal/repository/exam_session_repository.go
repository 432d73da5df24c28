package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const sessionColumns = `id, exam_id, student_id, started_at, submitted_at, status,
	lock_reason, warning_count, last_warning_at, is_locked`

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := row.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.StartedAt, &s.SubmittedAt, &s.Status,
		&s.LockReason, &s.WarningCount, &s.LastWarningAt, &s.IsLocked)
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

// GetByID retrieves a session by id.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
}

// GetByExamAndStudent retrieves the session of a specific exam-student combination.
func (r *ExamSessionRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE exam_id = $1 AND student_id = $2`,
		examID, studentID))
}

// Create inserts a new in-progress session. If a concurrent request inserted the
// session first, that row is returned instead.
func (r *ExamSessionRepository) Create(ctx context.Context, examID uuid.UUID, studentID int, startedAt time.Time) (*model.ExamSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, student_id, started_at, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING `+sessionColumns,
		examID, studentID, startedAt, model.SessionStatusInProgress))
	if errors.Is(err, ErrNotFound) {
		return r.GetByExamAndStudent(ctx, examID, studentID)
	}
	return s, err
}

// Lock moves an in-progress session to a terminal status. Only the first lock wins;
// later calls return the stored row with changed=false.
func (r *ExamSessionRepository) Lock(ctx context.Context, id uuid.UUID, status model.SessionStatus, reason model.LockReason, at time.Time) (*model.ExamSession, bool, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET status = $2, lock_reason = $3, submitted_at = $4, is_locked = TRUE
		 WHERE id = $1 AND status = $5
		 RETURNING `+sessionColumns,
		id, status, reason, at, model.SessionStatusInProgress))
	if errors.Is(err, ErrNotFound) {
		s, err = r.GetByID(ctx, id)
		return s, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// RecordWarning stores the warning counter. The count never moves backwards.
func (r *ExamSessionRepository) RecordWarning(ctx context.Context, id uuid.UUID, count int, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET warning_count = GREATEST(warning_count, $2), last_warning_at = $3
		 WHERE id = $1 AND status = $4`,
		id, count, at, model.SessionStatusInProgress)
	return err
}

// MarkGraded flags a locked session as graded.
func (r *ExamSessionRepository) MarkGraded(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions SET status = $2
		 WHERE id = $1 AND is_locked = TRUE`,
		id, model.SessionStatusGraded)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpired retrieves in-progress sessions whose deadline is at or before now.
func (r *ExamSessionRepository) ListExpired(ctx context.Context, now time.Time) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT es.id, es.exam_id, es.student_id, es.started_at, es.submitted_at, es.status,
		        es.lock_reason, es.warning_count, es.last_warning_at, es.is_locked
		 FROM exam_sessions es
		 JOIN exams e ON e.id = es.exam_id
		 WHERE es.status = $1
		   AND es.started_at + make_interval(mins => e.duration_minutes) <= $2
		 ORDER BY es.started_at`,
		model.SessionStatusInProgress, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// ListByExam retrieves every session of an exam, for the grading overview.
func (r *ExamSessionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE exam_id = $1 ORDER BY started_at`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// ListByStudent retrieves every session of a student, for the dashboard overlay.
func (r *ExamSessionRepository) ListByStudent(ctx context.Context, studentID int) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE student_id = $1`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// CountByExam returns how many sessions an exam has.
func (r *ExamSessionRepository) CountByExam(ctx context.Context, examID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exam_sessions WHERE exam_id = $1`, examID).Scan(&n)
	return n, err
}
