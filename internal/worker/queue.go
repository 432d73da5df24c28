package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrQueueEmpty is returned by Pop when nothing arrived within the timeout.
var ErrQueueEmpty = errors.New("queue empty")

// Broker is the list-queue subset of Redis the workers use.
type Broker interface {
	Push(ctx context.Context, queue string, payloads ...[]byte) error
	Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)
}

// RedisBroker implements Broker with RPUSH and BLPOP.
type RedisBroker struct {
	rdb *redis.Client
}

// NewRedisBroker creates a new RedisBroker.
func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

// Push appends payloads in one pipeline round trip.
func (b *RedisBroker) Push(ctx context.Context, queue string, payloads ...[]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	pipe := b.rdb.Pipeline()
	for _, p := range payloads {
		pipe.RPush(ctx, queue, p)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Pop blocks up to timeout for the next payload. timeout must be >= 1s to satisfy Redis.
func (b *RedisBroker) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	result, err := b.rdb.BLPop(ctx, timeout, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrQueueEmpty
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, ErrQueueEmpty
	}
	return []byte(result[1]), nil
}

// Depth returns the length of each queue in one pipelined round trip.
func (b *RedisBroker) Depth(ctx context.Context, queues ...string) (map[string]int64, error) {
	pipe := b.rdb.Pipeline()
	cmds := make(map[string]*redis.IntCmd, len(queues))
	for _, q := range queues {
		cmds[q] = pipe.LLen(ctx, q)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(queues))
	for q, cmd := range cmds {
		out[q] = cmd.Val()
	}
	return out, nil
}

// Publisher hands engine side effects to the workers.
type Publisher struct {
	broker Broker
}

// NewPublisher creates a new Publisher.
func NewPublisher(broker Broker) *Publisher {
	return &Publisher{broker: broker}
}

// RecordCheat queues a raw detector signal for the audit log.
func (p *Publisher) RecordCheat(ctx context.Context, ev model.CheatEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal cheat event: %w", err)
	}
	return p.broker.Push(ctx, config.WorkerKey.PersistCheatsQueue, data)
}

// gradeJob is one auto-grade request.
type gradeJob struct {
	SessionID uuid.UUID `json:"session_id"`
	Attempt   int       `json:"attempt"`
}

// EnqueueGrade queues auto-grading of a locked session.
func (p *Publisher) EnqueueGrade(ctx context.Context, sessionID uuid.UUID) error {
	data, err := json.Marshal(gradeJob{SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("marshal grade job: %w", err)
	}
	return p.broker.Push(ctx, config.WorkerKey.AutoGradeQueue, data)
}
