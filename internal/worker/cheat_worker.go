package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"k8s.io/utils/clock"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// CheatStore persists audit rows.
type CheatStore interface {
	CopyBatch(ctx context.Context, events []model.CheatEvent) error
	Insert(ctx context.Context, e model.CheatEvent) error
}

type CheatWorker struct {
	broker Broker
	store  CheatStore
	clock  clock.WithTicker
	log    zerolog.Logger
}

func NewCheatWorker(broker Broker, store CheatStore, clk clock.WithTicker, log zerolog.Logger) *CheatWorker {
	return &CheatWorker{
		broker: broker,
		store:  store,
		clock:  clk,
		log:    log.With().Str("component", "cheat_worker").Logger(),
	}
}

// Start drains the cheat queue until ctx is done. Events are written in batches of
// BatchSize or every BatchTimeout, whichever comes first.
func (w *CheatWorker) Start(ctx context.Context) {
	w.log.Info().Msg("CheatWorker started")

	buffer := make([]model.CheatEvent, 0, BatchSize)
	lastFlushTime := w.clock.Now()

	for {
		// 1. Check Flush Conditions (Time or Size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || w.clock.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = w.clock.Now()
			}
		}

		// 2. Check Context (Graceful Shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis
		data, err := w.broker.Pop(ctx, config.WorkerKey.PersistCheatsQueue, PollTimeout)
		if err != nil {
			if errors.Is(err, ErrQueueEmpty) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Queue error, sleeping 3s")
			w.sleep(ctx, 3*time.Second)
			continue
		}

		// 4. Process Data
		var ev model.CheatEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			// Malformed JSON cannot be retried.
			w.log.Error().Err(err).Str("data", string(data)).Msg("Discarding malformed JSON")
			metrics.WorkerJobs.WithLabelValues("cheat", "discarded").Inc()
			continue
		}
		buffer = append(buffer, ev)
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue
func (w *CheatWorker) flushSafe(ctx context.Context, batch []model.CheatEvent) {
	if err := w.store.CopyBatch(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
		return
	}
	metrics.WorkerJobs.WithLabelValues("cheat", "ok").Add(float64(len(batch)))
}

func (w *CheatWorker) fallbackInsert(ctx context.Context, batch []model.CheatEvent) {
	var requeue []model.CheatEvent
	for _, ev := range batch {
		if err := w.store.Insert(ctx, ev); err != nil {
			w.log.Error().Err(err).Str("session_id", ev.SessionID.String()).Msg("Insert failed, requeueing")
			requeue = append(requeue, ev)
			continue
		}
		metrics.WorkerJobs.WithLabelValues("cheat", "ok").Inc()
	}
	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

func (w *CheatWorker) requeue(ctx context.Context, items []model.CheatEvent) {
	payloads := make([][]byte, 0, len(items))
	for _, ev := range items {
		data, _ := json.Marshal(ev)
		payloads = append(payloads, data)
	}

	if err := w.broker.Push(ctx, config.WorkerKey.PersistCheatsQueue, payloads...); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue cheat events. Data loss occurred.")
		metrics.WorkerJobs.WithLabelValues("cheat", "lost").Add(float64(len(items)))
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items")
	metrics.WorkerJobs.WithLabelValues("cheat", "requeued").Add(float64(len(items)))
	// Avoid thrashing while the database is down.
	w.sleep(ctx, 2*time.Second)
}

func (w *CheatWorker) shutdown(buffer []model.CheatEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")
	if len(buffer) == 0 {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.flushSafe(shutdownCtx, buffer)
}

func (w *CheatWorker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-w.clock.After(d):
	}
}
