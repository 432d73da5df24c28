package worker

import (
	"context"
	"sync"
	"time"
)

// memBroker is an in-memory Broker. Pop never blocks for long so worker loops can
// observe cancellation.
type memBroker struct {
	mu     sync.Mutex
	queues map[string][][]byte
}

func newMemBroker() *memBroker {
	return &memBroker{queues: make(map[string][][]byte)}
}

func (b *memBroker) Push(_ context.Context, queue string, payloads ...[]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[queue] = append(b.queues[queue], payloads...)
	return nil
}

func (b *memBroker) Pop(_ context.Context, queue string, _ time.Duration) ([]byte, error) {
	b.mu.Lock()
	if q := b.queues[queue]; len(q) > 0 {
		b.queues[queue] = q[1:]
		b.mu.Unlock()
		return q[0], nil
	}
	b.mu.Unlock()
	time.Sleep(time.Millisecond)
	return nil, ErrQueueEmpty
}

func (b *memBroker) len(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queue])
}

func (b *memBroker) items(queue string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.queues[queue]...)
}
