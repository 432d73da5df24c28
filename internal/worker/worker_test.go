package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/scoring"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

var epoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type memCheatStore struct {
	mu       sync.Mutex
	failCopy bool
	failFor  map[uuid.UUID]bool
	rows     []model.CheatEvent
}

func (s *memCheatStore) CopyBatch(_ context.Context, events []model.CheatEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCopy {
		return errors.New("copy failed")
	}
	s.rows = append(s.rows, events...)
	return nil
}

func (s *memCheatStore) Insert(_ context.Context, e model.CheatEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[e.SessionID] {
		return errors.New("insert failed")
	}
	s.rows = append(s.rows, e)
	return nil
}

func (s *memCheatStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func cheatEvent(sessionID uuid.UUID) model.CheatEvent {
	return model.CheatEvent{ExamID: uuid.New(), StudentID: 7, SessionID: sessionID, Signal: "window_blur", Counted: true, Warning: 1, RecordedAt: epoch}
}

func TestPublisherQueuesPayloads(t *testing.T) {
	broker := newMemBroker()
	p := NewPublisher(broker)
	sid := uuid.New()

	require.NoError(t, p.RecordCheat(context.Background(), cheatEvent(sid)))
	require.NoError(t, p.EnqueueGrade(context.Background(), sid))

	var ev model.CheatEvent
	require.NoError(t, json.Unmarshal(broker.items(config.WorkerKey.PersistCheatsQueue)[0], &ev))
	assert.Equal(t, sid, ev.SessionID)

	var job gradeJob
	require.NoError(t, json.Unmarshal(broker.items(config.WorkerKey.AutoGradeQueue)[0], &job))
	assert.Equal(t, sid, job.SessionID)
	assert.Zero(t, job.Attempt)
}

func TestCheatWorkerFlushesOnShutdown(t *testing.T) {
	broker := newMemBroker()
	store := &memCheatStore{}
	pub := NewPublisher(broker)
	for i := 0; i < 3; i++ {
		require.NoError(t, pub.RecordCheat(context.Background(), cheatEvent(uuid.New())))
	}

	w := NewCheatWorker(broker, store, clocktesting.NewFakeClock(epoch), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return broker.len(config.WorkerKey.PersistCheatsQueue) == 0 }, time.Second, time.Millisecond)
	assert.Zero(t, store.count(), "below batch size and timeout nothing is written")

	cancel()
	<-done
	assert.Equal(t, 3, store.count())
}

func TestCheatWorkerFlushesAfterTimeout(t *testing.T) {
	broker := newMemBroker()
	store := &memCheatStore{}
	clk := clocktesting.NewFakeClock(epoch)
	require.NoError(t, NewPublisher(broker).RecordCheat(context.Background(), cheatEvent(uuid.New())))

	w := NewCheatWorker(broker, store, clk, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.Eventually(t, func() bool { return broker.len(config.WorkerKey.PersistCheatsQueue) == 0 }, time.Second, time.Millisecond)
	clk.Step(BatchTimeout)
	assert.Eventually(t, func() bool { return store.count() == 1 }, time.Second, time.Millisecond)
}

func TestCheatWorkerFallbackRequeuesFailedRows(t *testing.T) {
	broker := newMemBroker()
	bad := uuid.New()
	store := &memCheatStore{failCopy: true, failFor: map[uuid.UUID]bool{bad: true}}
	w := NewCheatWorker(broker, store, clocktesting.NewFakeClock(epoch), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // skip the anti-thrash pause

	w.flushSafe(ctx, []model.CheatEvent{cheatEvent(uuid.New()), cheatEvent(bad)})

	assert.Equal(t, 1, store.count())
	items := broker.items(config.WorkerKey.PersistCheatsQueue)
	require.Len(t, items, 1)
	var ev model.CheatEvent
	require.NoError(t, json.Unmarshal(items[0], &ev))
	assert.Equal(t, bad, ev.SessionID)
}

type fakeGrader struct {
	calls atomic.Int32
	err   error
}

func (g *fakeGrader) AutoGrade(_ context.Context, _ uuid.UUID) (*scoring.Scorecard, error) {
	g.calls.Add(1)
	return &scoring.Scorecard{}, g.err
}

func TestScoringWorkerConsumesQueue(t *testing.T) {
	broker := newMemBroker()
	grader := &fakeGrader{}
	require.NoError(t, NewPublisher(broker).EnqueueGrade(context.Background(), uuid.New()))

	w := NewScoringWorker(broker, grader, clocktesting.NewFakeClock(epoch), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	assert.Eventually(t, func() bool { return grader.calls.Load() == 1 }, time.Second, time.Millisecond)
}

func TestScoringWorkerRetryPolicy(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []struct {
		name    string
		err     error
		attempt int
		requeue bool
	}{
		{"transient failure is retried", errors.New("db down"), 0, true},
		{"last attempt is dropped", errors.New("db down"), ScoreMaxAttempts - 1, false},
		{"unlocked session is dropped", service.ErrNotLocked, 0, false},
		{"missing session is dropped", service.ErrSessionNotFound, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			broker := newMemBroker()
			w := NewScoringWorker(broker, &fakeGrader{err: tc.err}, clocktesting.NewFakeClock(epoch), zerolog.Nop())

			w.process(cancelled, gradeJob{SessionID: uuid.New(), Attempt: tc.attempt})

			items := broker.items(config.WorkerKey.AutoGradeQueue)
			if !tc.requeue {
				assert.Empty(t, items)
				return
			}
			require.Len(t, items, 1)
			var job gradeJob
			require.NoError(t, json.Unmarshal(items[0], &job))
			assert.Equal(t, tc.attempt+1, job.Attempt)
		})
	}
}

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) SweepExpired(context.Context) (int, error) {
	s.calls.Add(1)
	return 0, nil
}

func TestExpiryWorkerSweepsOnInterval(t *testing.T) {
	clk := clocktesting.NewFakeClock(epoch)
	sweeper := &countingSweeper{}
	w := NewExpiryWorker(sweeper, clk, 30*time.Second, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sweeper.calls.Load() == 1 && clk.HasWaiters() }, time.Second, time.Millisecond)
	clk.Step(30 * time.Second)
	assert.Eventually(t, func() bool { return sweeper.calls.Load() == 2 }, time.Second, time.Millisecond)

	cancel()
	<-done
}
