// internal/pkg/async/pool.go
package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Task is an independent unit of background work.
type Task struct {
	Name    string
	Execute func(ctx context.Context) error
}

// Pool runs submitted tasks on a fixed set of workers fed by a bounded
// queue. Submitters never wait: when the queue is full the task is rejected.
// Task failures and panics are logged and never reach the submitter.
type Pool struct {
	workerCount int
	taskTimeout time.Duration
	tasks       chan Task
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewPool creates a pool. Call Start before submitting.
func NewPool(workerCount, queueSize int, taskTimeout time.Duration, logger *slog.Logger) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workerCount: workerCount,
		taskTimeout: taskTimeout,
		tasks:       make(chan Task, queueSize),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the workers. Calling it more than once is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.logger.Info("Background pool started",
		slog.Int("workers", p.workerCount),
		slog.Int("queue_size", cap(p.tasks)))
}

// Submit enqueues task without blocking. It returns false when the queue is
// full or the pool has been stopped.
func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}

	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Pending returns the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int {
	return len(p.tasks)
}

// Stop closes the queue and waits for workers to drain it. When ctx expires
// first, in-flight tasks are cancelled and ctx's error is returned.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.tasks)
	started := p.started
	p.mu.Unlock()

	if !started {
		p.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("Background pool drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("Background pool stopped before drain",
			slog.Int("pending", len(p.tasks)))
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	ctx := p.ctx
	if p.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(p.ctx, p.taskTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Panic recovered in background task",
				slog.String("task", task.Name),
				slog.Any("panic", r))
		}
	}()

	if task.Execute == nil {
		return
	}
	if err := task.Execute(ctx); err != nil {
		p.logger.Error("Background task failed",
			slog.String("task", task.Name),
			slog.Any("error", fmt.Errorf("%s: %w", task.Name, err)))
	}
}
