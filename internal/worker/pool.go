// Package worker provides a small bounded worker pool for background tasks.
// Campaigns run here so the triggering request returns immediately and task
// failures stay observable through the pool's logger rather than vanishing
// with an ad hoc goroutine.
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrQueueFull is returned when the task queue has no capacity.
var ErrQueueFull = errors.New("worker queue full")

// ErrStopped is returned when the pool is no longer accepting tasks.
var ErrStopped = errors.New("worker pool stopped")

// Task is a unit of background work. The context is the pool's lifetime
// context; long tasks should honor its cancellation.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed set of workers with a bounded queue.
type Pool struct {
	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logrus.Logger

	mu      sync.Mutex
	stopped bool
}

// New starts a pool with the given worker count and queue capacity.
func New(workers, queueSize int, log *logrus.Logger) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 16
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:  make(chan Task, queueSize),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

// Submit enqueues a task without blocking.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops intake, lets queued tasks finish, and waits for workers.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.log.WithFields(logrus.Fields{
						"worker": id,
						"panic":  r,
					}).Error("background task panicked")
				}
			}()
			task(p.ctx)
		}()
	}
}
