// Package worker runs queued model invocations.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/agropredict/internal/adapters/mq/queue"
	"github.com/okian/agropredict/internal/domain/model"
	"github.com/okian/agropredict/pkg/logger"
	"github.com/okian/agropredict/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	metricsUpdateInterval   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Invoker performs one model call; see ensemble.Invoker.
type Invoker interface {
	Invoke(ctx context.Context, req model.Request) (model.ModelResult, bool)
}

// Queue defines how workers receive invocations.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Invocation
}

// Worker processes invocations.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current invocation.
	Shutdown(ctx context.Context) error
}

type busyCounter struct {
	n atomic.Int64
}

func (b *busyCounter) enter() {
	if b != nil {
		b.n.Add(1)
	}
}

func (b *busyCounter) leave() {
	if b != nil {
		b.n.Add(-1)
	}
}

func (b *busyCounter) load() int {
	if b == nil {
		return 0
	}
	return int(b.n.Load())
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	invoker Invoker
	name    string
	busy    *busyCounter

	processed atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, invoker Invoker, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		invoker:  invoker,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	ch := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case inv, ok := <-ch:
			if !ok {
				return
			}
			if err := w.process(inv); err != nil {
				w.logger.Debug(ctx, "invocation failed",
					logger.Uint64("round", inv.RoundID),
					logger.String("model", string(inv.Request.ModelID)),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process runs one invocation and delivers its result. Invocations whose
// round is already cancelled are dropped without a call.
func (w *InMemoryWorker) process(inv queue.Invocation) error { //nolint:gocritic // hugeParam: received by value from the channel
	ctx := inv.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		metrics.RecordErrorByComponent("worker", "round_cancelled")
		return nil
	}

	w.busy.enter()
	defer w.busy.leave()

	start := time.Now()
	res, ok := w.invoker.Invoke(ctx, inv.Request)
	metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	w.processed.Add(1)

	if !ok {
		return nil
	}
	if inv.Deliver != nil {
		inv.Deliver(res)
	}
	if !res.OK() {
		metrics.RecordWorkerError()
		return fmt.Errorf("%s: %s", res.Kind, res.Message)
	}
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	busy    *busyCounter

	shutdown chan struct{}

	lastProcessed     int64
	lastProcessedTime time.Time

	logger logger.Logger
}

// NewPool creates a new worker pool. workerCount < 1 selects a multiple of
// the CPU count.
func NewPool(workerCount int, q Queue, invoker Invoker) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:           make([]*InMemoryWorker, workerCount),
		queue:             q,
		busy:              &busyCounter{},
		shutdown:          make(chan struct{}),
		lastProcessedTime: time.Now(),
		logger:            logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(q, invoker,
			WithName("worker-"+strconv.Itoa(i)),
			withBusy(pool.busy),
		)
	}

	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0.0)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Busy returns how many workers are running an invocation right now.
func (p *Pool) Busy() int { return p.busy.load() }

// Processed returns how many invocations the pool has run.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.processed.Load()
	}
	return n
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	now := time.Now()
	processed := p.Processed()
	if secs := now.Sub(p.lastProcessedTime).Seconds(); secs > 0 {
		metrics.UpdateWorkerMessagesPerSecond(float64(processed-p.lastProcessed) / secs)
	}
	busy := p.Busy()
	metrics.UpdateWorkerActiveCount(busy)
	metrics.UpdateWorkerIdleCount(len(p.workers) - busy)

	p.lastProcessed = processed
	p.lastProcessedTime = now
}

// Shutdown closes the queue and waits for the workers to stop.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	close(p.shutdown)

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	return nil
}
