package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/scoring"
	"github.com/stemsi/exstem-proctor/internal/service"
	"k8s.io/utils/clock"
)

const (
	ScorePollTimeout = 1 * time.Second
	// ScoreMaxAttempts bounds retries of one session before the job is dropped.
	ScoreMaxAttempts = 5
)

// AutoGrader grades one locked session.
type AutoGrader interface {
	AutoGrade(ctx context.Context, sessionID uuid.UUID) (*scoring.Scorecard, error)
}

// ScoringWorker auto-grades sessions as they lock.
type ScoringWorker struct {
	broker Broker
	grader AutoGrader
	clock  clock.Clock
	log    zerolog.Logger
}

func NewScoringWorker(broker Broker, grader AutoGrader, clk clock.Clock, log zerolog.Logger) *ScoringWorker {
	return &ScoringWorker{
		broker: broker,
		grader: grader,
		clock:  clk,
		log:    log.With().Str("component", "scoring_worker").Logger(),
	}
}

// Start consumes the auto-grade queue until ctx is done.
func (w *ScoringWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ScoringWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ScoringWorker stopped")
			return
		default:
		}

		data, err := w.broker.Pop(ctx, config.WorkerKey.AutoGradeQueue, ScorePollTimeout)
		if err != nil {
			if !errors.Is(err, ErrQueueEmpty) && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("BLPop error")
				w.sleep(ctx, 3*time.Second)
			}
			continue
		}

		var job gradeJob
		if err := json.Unmarshal(data, &job); err != nil {
			w.log.Error().Err(err).Msg("Invalid JSON payload")
			metrics.WorkerJobs.WithLabelValues("scoring", "discarded").Inc()
			continue
		}

		w.process(ctx, job)
	}
}

func (w *ScoringWorker) process(ctx context.Context, job gradeJob) {
	log := w.log.With().Str("session_id", job.SessionID.String()).Int("attempt", job.Attempt).Logger()

	_, err := w.grader.AutoGrade(ctx, job.SessionID)
	switch {
	case err == nil:
		metrics.WorkerJobs.WithLabelValues("scoring", "ok").Inc()
		return
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrNotLocked):
		// Retrying cannot help.
		log.Warn().Err(err).Msg("Dropping auto-grade job")
		metrics.WorkerJobs.WithLabelValues("scoring", "discarded").Inc()
		return
	}

	job.Attempt++
	if job.Attempt >= ScoreMaxAttempts {
		log.Error().Err(err).Msg("Auto-grade failed permanently, a grader must finalize manually")
		metrics.WorkerJobs.WithLabelValues("scoring", "lost").Inc()
		return
	}

	log.Warn().Err(err).Msg("Auto-grade failed, requeueing")
	raw, _ := json.Marshal(job)
	if err := w.broker.Push(ctx, config.WorkerKey.AutoGradeQueue, raw); err != nil {
		log.Error().Err(err).Msg("CRITICAL: Failed to requeue auto-grade job")
		metrics.WorkerJobs.WithLabelValues("scoring", "lost").Inc()
		return
	}
	metrics.WorkerJobs.WithLabelValues("scoring", "requeued").Inc()
	w.sleep(ctx, time.Second)
}

func (w *ScoringWorker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-w.clock.After(d):
	}
}
