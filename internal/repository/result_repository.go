package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ResultRepository handles finalized results, one per session.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// Upsert writes the result of a session, replacing an earlier finalization.
func (r *ResultRepository) Upsert(ctx context.Context, res *model.Result) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO results (session_id, total_points, max_points, percentage, grade_letter, grader_id, comments, graded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (session_id) DO UPDATE
		 SET total_points = EXCLUDED.total_points,
		     max_points = EXCLUDED.max_points,
		     percentage = EXCLUDED.percentage,
		     grade_letter = EXCLUDED.grade_letter,
		     grader_id = EXCLUDED.grader_id,
		     comments = EXCLUDED.comments,
		     graded_at = EXCLUDED.graded_at
		 RETURNING id`,
		res.SessionID, res.TotalPoints, res.MaxPoints, res.Percentage, res.GradeLetter,
		res.GraderID, res.Comments, res.GradedAt,
	).Scan(&res.ID)
}

// GetBySession retrieves the result of a session.
func (r *ResultRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.Result, error) {
	res := &model.Result{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, session_id, total_points, max_points, percentage, grade_letter, grader_id, comments, graded_at
		 FROM results WHERE session_id = $1`, sessionID,
	).Scan(&res.ID, &res.SessionID, &res.TotalPoints, &res.MaxPoints, &res.Percentage, &res.GradeLetter,
		&res.GraderID, &res.Comments, &res.GradedAt)
	if err != nil {
		return nil, translate(err)
	}
	return res, nil
}
