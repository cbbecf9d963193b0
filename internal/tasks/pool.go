// Package tasks runs detached units of work on a fixed set of workers.
package tasks

import (
	"context"
	"log/slog"
	"sync"
)

// Task is a unit of work. The context is never cancelled by the pool;
// tasks bound their own runtime.
type Task func(ctx context.Context)

// Pool is a fixed number of workers fed by a bounded queue
type Pool struct {
	name  string
	queue chan Task
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	logger *slog.Logger
}

// NewPool starts workers goroutines reading from a queue of queueSize.
func NewPool(name string, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	p := &Pool{
		name:   name,
		queue:  make(chan Task, queueSize),
		logger: slog.With("component", "tasks", "pool", name),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for t := range p.queue {
		p.run(t)
	}
}

func (p *Pool) run(t Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", "panic", r)
		}
	}()
	t(context.Background())
}

// TrySubmit queues t without blocking. It returns false when the queue is
// full or the pool is closed.
func (p *Pool) TrySubmit(t Task) bool {
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

// Close stops accepting tasks and waits for queued and running ones.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug("pool drained")
}
