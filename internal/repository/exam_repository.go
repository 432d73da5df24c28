package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const examColumns = `id, teacher_id, title, duration_minutes, opens_at, closes_at,
	anti_cheat, max_warnings, allow_review, created_at, updated_at`

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.TeacherID, &e.Title, &e.DurationMinutes, &e.OpensAt, &e.ClosesAt,
		&e.AntiCheat, &e.MaxWarnings, &e.AllowReview, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return e, nil
}

// ListByTeacher retrieves the exams a teacher authored, newest first.
func (r *ExamRepository) ListByTeacher(ctx context.Context, teacherID int) ([]model.Exam, error) {
	return r.list(ctx,
		`SELECT `+examColumns+` FROM exams WHERE teacher_id = $1 ORDER BY opens_at DESC`, teacherID)
}

// ListVisible retrieves the exams a student can see on the dashboard: every exam that
// has not closed yet and opens before horizon.
func (r *ExamRepository) ListVisible(ctx context.Context, now, horizon time.Time) ([]model.Exam, error) {
	return r.list(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE closes_at > $1 AND opens_at <= $2
		 ORDER BY opens_at`, now, horizon)
}

func (r *ExamRepository) list(ctx context.Context, query string, args ...any) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.TeacherID, &e.Title, &e.DurationMinutes, &e.OpensAt, &e.ClosesAt,
			&e.AntiCheat, &e.MaxWarnings, &e.AllowReview, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (teacher_id, title, duration_minutes, opens_at, closes_at, anti_cheat, max_warnings, allow_review)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		e.TeacherID, e.Title, e.DurationMinutes, e.OpensAt, e.ClosesAt, e.AntiCheat, e.MaxWarnings, e.AllowReview,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}
