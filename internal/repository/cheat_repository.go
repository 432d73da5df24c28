package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

var cheatColumns = []string{"exam_id", "student_id", "session_id", "signal", "counted", "warning_count", "recorded_at"}

// CheatRepository writes the cheat signal audit log.
type CheatRepository struct {
	pool *pgxpool.Pool
}

// NewCheatRepository creates a new CheatRepository.
func NewCheatRepository(pool *pgxpool.Pool) *CheatRepository {
	return &CheatRepository{pool: pool}
}

// CopyBatch bulk-inserts events with COPY.
func (r *CheatRepository) CopyBatch(ctx context.Context, events []model.CheatEvent) error {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, []any{e.ExamID, e.StudentID, e.SessionID, e.Signal, e.Counted, e.Warning, e.RecordedAt})
	}
	_, err := r.pool.CopyFrom(ctx, pgx.Identifier{"exam_cheats"}, cheatColumns, pgx.CopyFromRows(rows))
	return err
}

// Insert writes a single event.
func (r *CheatRepository) Insert(ctx context.Context, e model.CheatEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_cheats (exam_id, student_id, session_id, signal, counted, warning_count, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ExamID, e.StudentID, e.SessionID, e.Signal, e.Counted, e.Warning, e.RecordedAt)
	return err
}

// ListBySession retrieves the audit trail of a session in order.
func (r *CheatRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.CheatEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT exam_id, student_id, session_id, signal, counted, warning_count, recorded_at
		 FROM exam_cheats WHERE session_id = $1 ORDER BY recorded_at, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.CheatEvent
	for rows.Next() {
		var e model.CheatEvent
		if err := rows.Scan(&e.ExamID, &e.StudentID, &e.SessionID, &e.Signal, &e.Counted, &e.Warning, &e.RecordedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
