package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ExamCache is a read-through Redis cache of exams and their questions. Every student
// entering an exam loads the same rows, and they do not change once sessions exist.
// Redis failures fall back to PostgreSQL.
type ExamCache struct {
	rdb       *redis.Client
	exams     *ExamRepository
	questions *QuestionRepository
	ttl       time.Duration
	log       zerolog.Logger
}

// NewExamCache creates a new ExamCache.
func NewExamCache(rdb *redis.Client, exams *ExamRepository, questions *QuestionRepository, ttl time.Duration, log zerolog.Logger) *ExamCache {
	return &ExamCache{
		rdb:       rdb,
		exams:     exams,
		questions: questions,
		ttl:       ttl,
		log:       log.With().Str("component", "exam_cache").Logger(),
	}
}

func (c *ExamCache) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	key := config.CacheKey.ExamKey(examID.String())
	var exam model.Exam
	if c.get(ctx, key, &exam) {
		return &exam, nil
	}

	e, err := c.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, e)
	return e, nil
}

func (c *ExamCache) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	key := config.CacheKey.ExamQuestionsKey(examID.String())
	var questions []model.Question
	if c.get(ctx, key, &questions) {
		return questions, nil
	}

	qs, err := c.questions.ListByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, qs)
	return qs, nil
}

// InvalidateExam drops both cached entries of an exam.
func (c *ExamCache) InvalidateExam(ctx context.Context, examID uuid.UUID) error {
	id := examID.String()
	if err := c.rdb.Del(ctx, config.CacheKey.ExamKey(id), config.CacheKey.ExamQuestionsKey(id)).Err(); err != nil {
		return fmt.Errorf("invalidate exam cache: %w", err)
	}
	return nil
}

func (c *ExamCache) get(ctx context.Context, key string, dst any) bool {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("key", key).Msg("Cache read failed, using database")
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Discarding malformed cache entry")
		return false
	}
	return true
}

func (c *ExamCache) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}
