package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrPoolDraining is returned when work arrives after Shutdown began.
var ErrPoolDraining = errors.New("worker pool is draining")

// PoolMetrics is a point-in-time snapshot of pool activity.
type PoolMetrics struct {
	InFlight  int64 `json:"in_flight"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Recovered int64 `json:"recovered"`
}

// WorkerPool bounds the number of step attempts running concurrently across
// all executions. Rounds go through Dispatch, which blocks until every task
// of its batch has returned: the round barrier lives here, so concurrent
// executions sharing the pool never wait on each other's steps.
type WorkerPool struct {
	slots    chan struct{}
	draining chan struct{}

	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup

	active    atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	recovered atomic.Int64
}

// NewWorkerPool creates a pool running at most size tasks at once.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		slots:    make(chan struct{}, size),
		draining: make(chan struct{}),
	}
}

// Submit runs fn on a pool slot. It blocks while the pool is at capacity,
// honouring ctx, and refuses work once Shutdown has begun.
func (p *WorkerPool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.draining:
		return ErrPoolDraining
	}

	// inflight.Add must happen under the lock so a racing Shutdown cannot
	// pass its Wait between the slot grab and the goroutine start.
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		<-p.slots
		return ErrPoolDraining
	}
	p.inflight.Add(1)
	p.mu.Unlock()

	p.active.Add(1)
	go p.work(ctx, fn)
	return nil
}

func (p *WorkerPool) work(ctx context.Context, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			p.recovered.Add(1)
			p.failed.Add(1)
		}
		p.active.Add(-1)
		<-p.slots
		p.inflight.Done()
	}()

	if err := fn(ctx); err != nil {
		p.failed.Add(1)
	} else {
		p.succeeded.Add(1)
	}
}

// Dispatch submits every task of a batch and blocks until the whole batch
// has returned. The result holds one submission error per task; a non-nil
// entry means that task never ran.
func (p *WorkerPool) Dispatch(ctx context.Context, tasks []func(ctx context.Context) error) []error {
	errs := make([]error, len(tasks))
	var batch sync.WaitGroup
	for i, task := range tasks {
		i, task := i, task
		batch.Add(1)
		err := p.Submit(ctx, func(ctx context.Context) error {
			defer batch.Done()
			return task(ctx)
		})
		if err != nil {
			batch.Done()
			errs[i] = err
		}
	}
	batch.Wait()
	return errs
}

// Wait blocks until all in-flight work has returned.
func (p *WorkerPool) Wait() {
	p.inflight.Wait()
}

// Shutdown refuses new work and drains what is already running.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.draining)
	p.mu.Unlock()

	p.inflight.Wait()
}

// Metrics reports a snapshot of the pool counters.
func (p *WorkerPool) Metrics() PoolMetrics {
	return PoolMetrics{
		InFlight:  p.active.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		Recovered: p.recovered.Load(),
	}
}
