package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/mqworker/internal/config"
	"github.com/gyaneshwarpardhi/mqworker/internal/event"
	"github.com/gyaneshwarpardhi/mqworker/internal/metrics"
)

// ErrQueueFull is returned when the dispatch queue cannot take another event.
var ErrQueueFull = errors.New("dispatch: queue full")

// ErrPoolClosed is returned once Shutdown has been called.
var ErrPoolClosed = errors.New("dispatch: pool shut down")

// workerPool is a fixed-size goroutine pool with a bounded input queue.
type workerPool[T any] struct {
	queue   chan T
	process func(ctx context.Context, t T)
	wg      sync.WaitGroup

	mu     sync.RWMutex // guards closed and the close of queue
	closed bool
}

// newWorkerPool creates and starts a pool with n goroutines and queue capacity depth.
func newWorkerPool[T any](ctx context.Context, n, depth int, fn func(context.Context, T)) *workerPool[T] {
	p := &workerPool[T]{
		queue:   make(chan T, depth),
		process: fn,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
	return p
}

func (p *workerPool[T]) run(ctx context.Context) {
	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues a job without blocking (returns false if full or drained).
func (p *workerPool[T]) Submit(t T) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- t:
		return true
	default:
		return false
	}
}

// Drain closes the queue and waits for all workers to finish.
func (p *workerPool[T]) Drain() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Closed reports whether Drain has been called.
func (p *workerPool[T]) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// QueueLen returns how many jobs are currently queued.
func (p *workerPool[T]) QueueLen() int { return len(p.queue) }

// QueueCap returns the total queue capacity.
func (p *workerPool[T]) QueueCap() int { return cap(p.queue) }

type work struct {
	ev   event.Event
	md   event.Metadata
	done func(*Result)
}

// Pool runs dispatches on a fixed number of workers, one event per worker
// at a time.
type Pool struct {
	d       *Dispatcher
	pool    *workerPool[*work]
	timeout time.Duration
}

// NewPool starts conf.Workers workers behind a queue of conf.QueueDepth.
// Workers stop when ctx is cancelled or Shutdown is called.
func NewPool(ctx context.Context, d *Dispatcher, conf config.DispatchConf) *Pool {
	workers := conf.Workers
	if workers < 1 {
		workers = 1
	}
	depth := conf.QueueDepth
	if depth < 1 {
		depth = 1
	}
	timeout := conf.EventTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	p := &Pool{d: d, timeout: timeout}
	p.pool = newWorkerPool[*work](ctx, workers, depth, func(ctx context.Context, w *work) {
		res := d.DispatchWithMetadata(ctx, w.ev, w.md)
		if w.done != nil {
			w.done(res)
		}
	})
	return p
}

// Dispatcher returns the dispatcher the workers run.
func (p *Pool) Dispatcher() *Dispatcher { return p.d }

// ProcessSync dispatches ev on a worker and waits for the result.
// Returns ErrQueueFull if the queue is full and ErrPoolClosed after Shutdown.
func (p *Pool) ProcessSync(ctx context.Context, ev event.Event, md event.Metadata) (*Result, error) {
	resultC := make(chan *Result, 1)
	w := &work{ev: ev, md: md, done: func(r *Result) { resultC <- r }}
	if !p.pool.Submit(w) {
		metrics.EventsDropped.Inc()
		if p.pool.Closed() {
			return nil, ErrPoolClosed
		}
		return nil, fmt.Errorf("%w (capacity %d)", ErrQueueFull, p.pool.QueueCap())
	}
	p.observeQueue()

	select {
	case res := <-resultC:
		return res, nil
	case <-time.After(p.timeout):
		return nil, fmt.Errorf("event dispatch timeout after %v", p.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProcessAsync enqueues ev; done (if non-nil) receives the result on the
// worker goroutine. Returns false if the queue is full or the pool is shut down.
func (p *Pool) ProcessAsync(ev event.Event, md event.Metadata, done func(*Result)) bool {
	if !p.pool.Submit(&work{ev: ev, md: md, done: done}) {
		metrics.EventsDropped.Inc()
		return false
	}
	p.observeQueue()
	return true
}

// QueueUtilization returns queue used / capacity (0–1).
func (p *Pool) QueueUtilization() float64 {
	if p.pool.QueueCap() == 0 {
		return 0
	}
	return float64(p.pool.QueueLen()) / float64(p.pool.QueueCap())
}

func (p *Pool) observeQueue() {
	metrics.QueueUtilization.Set(p.QueueUtilization())
}

// Shutdown stops accepting work and waits for queued events to finish.
func (p *Pool) Shutdown() {
	p.pool.Drain()
}
