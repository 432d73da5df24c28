package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MonitorRepository provides the per-session aggregates of the live exam monitor.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// AnsweredCounts returns the number of stored non-empty answers of every session of
// an exam. Live sessions lag behind by at most one autosave interval.
func (r *MonitorRepository) AnsweredCounts(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]int, error) {
	return r.counts(ctx,
		`SELECT a.session_id, COUNT(*)
		 FROM answers a
		 JOIN exam_sessions s ON s.id = a.session_id
		 WHERE s.exam_id = $1
		   AND (a.selected_option_id IS NOT NULL OR COALESCE(a.answer_text, '') <> '')
		 GROUP BY a.session_id`,
		examID,
	)
}

// CheatCounts returns the number of recorded cheat signals of every session of an exam.
func (r *MonitorRepository) CheatCounts(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]int, error) {
	return r.counts(ctx,
		`SELECT session_id, COUNT(*)
		 FROM exam_cheats
		 WHERE exam_id = $1
		 GROUP BY session_id`,
		examID,
	)
}

func (r *MonitorRepository) counts(ctx context.Context, query string, examID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := r.pool.Query(ctx, query, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		result[id] = n
	}
	return result, rows.Err()
}
