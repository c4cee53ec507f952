package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var (
	ErrSaturated  = errors.New("admission queue is full")
	ErrPoolClosed = errors.New("worker pool is shut down")
)

// Task is one admitted job.
type Task struct {
	JobID string
	Token *Token
}

type RunFunc func(ctx context.Context, t Task)

type PoolStats struct {
	Workers  int `json:"workers"`
	Active   int `json:"active"`
	Queued   int `json:"queued"`
	Capacity int `json:"capacity"`
}

// Pool runs tasks on a fixed set of workers fed by a bounded queue.
// Submission never blocks.
type Pool struct {
	workers int
	queue   chan Task
	run     RunFunc
	log     logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
	quit   chan struct{}
	wg     sync.WaitGroup
	active atomic.Int64
}

func NewPool(workers, queueSize int, run RunFunc, log logrus.FieldLogger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		workers: workers,
		queue:   make(chan Task, queueSize),
		run:     run,
		log:     log,
		quit:    make(chan struct{}),
	}
}

// Start launches the workers. ctx is handed to every task run; cancelling
// it does not stop the workers, Shutdown does.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.log.WithField("workers", p.workers).Info("Worker pool started")
}

func (p *Pool) worker(ctx context.Context, n int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case t := <-p.queue:
			p.active.Add(1)
			p.safeRun(ctx, n, t)
			p.active.Add(-1)
		}
	}
}

func (p *Pool) safeRun(ctx context.Context, n int, t Task) {
	defer func() {
		if v := recover(); v != nil {
			p.log.WithFields(logrus.Fields{"worker": n, "job_id": t.JobID, "panic": v}).Error("Task panicked")
		}
	}()
	p.run(ctx, t)
}

// TrySubmit admits t or returns ErrSaturated when the queue is full.
func (p *Pool) TrySubmit(t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- t:
		return nil
	default:
		return ErrSaturated
	}
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:  p.workers,
		Active:   int(p.active.Load()),
		Queued:   len(p.queue),
		Capacity: cap(p.queue),
	}
}

// Shutdown stops admission and waits for running tasks until ctx expires.
// Tasks still queued are abandoned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.quit)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
