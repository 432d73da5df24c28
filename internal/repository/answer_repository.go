package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const answerColumns = `id, session_id, question_id, answer_text, selected_option_id,
	is_correct, points_earned, grade_overridden, updated_at`

// AnswerRepository handles student answers.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

func scanAnswer(row pgx.Row) (*model.Answer, error) {
	a := &model.Answer{}
	err := row.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.AnswerText, &a.SelectedOptionID,
		&a.IsCorrect, &a.PointsEarned, &a.GradeOverridden, &a.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return a, nil
}

// GetByID retrieves one answer.
func (r *AnswerRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Answer, error) {
	return scanAnswer(r.pool.QueryRow(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE id = $1`, id))
}

// ListBySession retrieves every stored answer of a session.
func (r *AnswerRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, *a)
	}
	return answers, rows.Err()
}

// upsertAnswerSQL writes one answer only while its session is unlocked.
const upsertAnswerSQL = `INSERT INTO answers (session_id, question_id, answer_text, selected_option_id, updated_at)
	SELECT $1, $2, $3, $4, NOW()
	WHERE EXISTS (SELECT 1 FROM exam_sessions WHERE id = $1 AND is_locked = FALSE)
	ON CONFLICT (session_id, question_id) DO UPDATE
	SET answer_text = EXCLUDED.answer_text,
	    selected_option_id = EXCLUDED.selected_option_id,
	    updated_at = NOW()`

// UpsertBatch writes the student part of every answer keyed by (session, question).
// The last write wins; grades are left untouched. A locked session is never written
// and yields ErrLocked.
func (r *AnswerRepository) UpsertBatch(ctx context.Context, sessionID uuid.UUID, answers []model.Answer) error {
	if len(answers) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range answers {
		batch.Queue(upsertAnswerSQL, sessionID, a.QuestionID, a.AnswerText, a.SelectedOptionID)
	}

	br := r.pool.SendBatch(ctx, batch)
	locked := false
	for range answers {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return translate(err)
		}
		if tag.RowsAffected() == 0 {
			locked = true
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	if locked {
		return ErrLocked
	}
	return nil
}

// GradeUpdate is one computed grade.
type GradeUpdate struct {
	SessionID    uuid.UUID
	QuestionID   uuid.UUID
	IsCorrect    bool
	PointsEarned float64
}

// ApplyAutoGrades stores computed grades. Answers a grader overrode keep their grade.
// Unanswered questions get a row so the grade is visible in review.
func (r *AnswerRepository) ApplyAutoGrades(ctx context.Context, grades []GradeUpdate) error {
	if len(grades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, g := range grades {
		batch.Queue(
			`INSERT INTO answers (session_id, question_id, is_correct, points_earned, updated_at)
			 VALUES ($1, $2, $3, $4, NOW())
			 ON CONFLICT (session_id, question_id) DO UPDATE
			 SET is_correct = EXCLUDED.is_correct,
			     points_earned = EXCLUDED.points_earned
			 WHERE answers.grade_overridden = FALSE`,
			g.SessionID, g.QuestionID, g.IsCorrect, g.PointsEarned,
		)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

// Override stores a grader's grade for one answer.
func (r *AnswerRepository) Override(ctx context.Context, id uuid.UUID, points float64, isCorrect *bool) (*model.Answer, error) {
	return scanAnswer(r.pool.QueryRow(ctx,
		`UPDATE answers
		 SET points_earned = $2, is_correct = $3, grade_overridden = TRUE
		 WHERE id = $1
		 RETURNING `+answerColumns,
		id, points, isCorrect))
}
