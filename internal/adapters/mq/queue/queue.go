// Package queue holds model invocations between the coordinator and the
// worker pool.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/agropredict/internal/domain/model"
	"github.com/okian/agropredict/pkg/metrics"
)

const defaultQueueCapacity = 1_024

// Invocation is the payload flowing through the queue.
type Invocation = model.Invocation

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an invocation. Returns false if the queue is full or
	// closed, or ctx is already done.
	Enqueue(ctx context.Context, inv Invocation) bool

	// Dequeue returns a channel that receives invocations. The channel is
	// closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Invocation

	// Len returns the current number of queued invocations.
	Len(ctx context.Context) int

	// Close stops accepting invocations.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	items    chan Invocation
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make(chan Invocation, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Dispatch enqueues inv under its own context. It lets the queue stand in
// as the coordinator's dispatcher.
func (q *InMemoryQueue) Dispatch(inv Invocation) bool { //nolint:gocritic // hugeParam: passed by value into the channel
	ctx := inv.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return q.Enqueue(ctx, inv)
}

// Enqueue adds an invocation to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, inv Invocation) bool { //nolint:gocritic // hugeParam: passed by value into the channel
	start := time.Now()
	defer func() {
		metrics.RecordQueueProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.reject("closed")
		return false
	}
	if ctx.Err() != nil {
		q.reject("context_cancelled")
		return false
	}

	select {
	case q.items <- inv:
		metrics.RecordQueueEnqueue()
		q.observe()
		return true
	default:
		q.reject("queue_full")
		return false
	}
}

func (q *InMemoryQueue) reject(reason string) {
	metrics.RecordQueueEnqueueError()
	metrics.RecordErrorByComponent("queue", reason)
}

func (q *InMemoryQueue) observe() {
	size := len(q.items)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Dequeue returns a channel that will receive invocations as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Invocation {
	out := make(chan Invocation)
	go func() {
		defer close(out)
		for inv := range q.items {
			select {
			case out <- inv:
				metrics.RecordQueueDequeue()
				q.observe()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued invocations.
func (q *InMemoryQueue) Len(_ context.Context) int {
	q.observe()
	return len(q.items)
}

// Close gracefully shuts down the queue. Calling it twice is a no-op.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
