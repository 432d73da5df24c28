package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// QuestionRepository handles questions and their options.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam retrieves the questions of an exam ordered by order_number, with their options nested.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question_type, question_text, points, order_number, correct_answer
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_number`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Type, &q.Text, &q.Points, &q.OrderNumber, &q.CorrectAnswer); err != nil {
			return nil, err
		}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return questions, nil
	}

	optRows, err := r.pool.Query(ctx,
		`SELECT o.id, o.question_id, o.option_text, o.is_correct, o.order_number
		 FROM question_options o
		 JOIN questions q ON q.id = o.question_id
		 WHERE q.exam_id = $1
		 ORDER BY o.question_id, o.order_number`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer optRows.Close()

	for optRows.Next() {
		var o model.Option
		if err := optRows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect, &o.OrderNumber); err != nil {
			return nil, err
		}
		if i, ok := index[o.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, o)
		}
	}
	return questions, optRows.Err()
}

// GetByID retrieves one question with its options.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q := &model.Question{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, question_type, question_text, points, order_number, correct_answer
		 FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.ExamID, &q.Type, &q.Text, &q.Points, &q.OrderNumber, &q.CorrectAnswer)
	if err != nil {
		return nil, translate(err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, question_id, option_text, is_correct, order_number
		 FROM question_options WHERE question_id = $1
		 ORDER BY order_number`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var o model.Option
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect, &o.OrderNumber); err != nil {
			return nil, err
		}
		q.Options = append(q.Options, o)
	}
	return q, rows.Err()
}

// Create inserts a question and its options in one transaction.
// A duplicate order number within the exam returns ErrConflict.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO questions (exam_id, question_type, question_text, points, order_number, correct_answer)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		q.ExamID, q.Type, q.Text, q.Points, q.OrderNumber, q.CorrectAnswer,
	).Scan(&q.ID)
	if err != nil {
		return translate(err)
	}

	for i := range q.Options {
		o := &q.Options[i]
		o.QuestionID = q.ID
		if err := tx.QueryRow(ctx,
			`INSERT INTO question_options (question_id, option_text, is_correct, order_number)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			o.QuestionID, o.Text, o.IsCorrect, o.OrderNumber,
		).Scan(&o.ID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
