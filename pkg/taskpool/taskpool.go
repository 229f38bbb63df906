package taskpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var poolLog = logrus.WithField("component", "taskpool")

// Task is one unit of work. Timeout, when positive, bounds Do's context.
type Task struct {
	Name    string
	Timeout time.Duration
	Do      func(ctx context.Context)
}

// Pool runs tasks on a fixed set of workers over a bounded queue. A panic in
// a task is recovered and logged; it never takes a worker down.
type Pool struct {
	workers int
	buffer  int

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc

	ch   chan Task
	wg   sync.WaitGroup
	once sync.Once
}

func New(buffer int, workers int) *Pool {
	if buffer <= 0 {
		buffer = 1024
	}
	if workers <= 0 {
		workers = 8
	}
	return &Pool{
		workers: workers,
		buffer:  buffer,
		ch:      make(chan Task, buffer),
	}
}

// Start launches the workers. Worker lifetime is bound to Stop, not to ctx:
// a canceled start context must not kill the pool while an ordered shutdown
// still needs it to run teardown tasks.
func (p *Pool) Start(ctx context.Context) {
	p.once.Do(func() {
		p.mu.Lock()
		p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
		p.mu.Unlock()

		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				for {
					select {
					case <-p.ctx.Done():
						return
					case task := <-p.ch:
						p.run(workerID, task)
					}
				}
			}(i)
		}

		poolLog.Infof("task pool started (workers=%d buffer=%d)", p.workers, cap(p.ch))
	})
}

func (p *Pool) run(workerID int, task Task) {
	if task.Do == nil {
		return
	}
	runCtx := p.ctx
	cancel := func() {}
	if task.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(p.ctx, task.Timeout)
	}
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			poolLog.Errorf("task panic: worker=%d name=%s panic=%v", workerID, task.Name, r)
		}
	}()
	task.Do(runCtx)
}

// Stop cancels the workers and waits for them under ctx's deadline.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		poolLog.Infof("task pool stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("task pool stop timed out: %w", ctx.Err())
	}
}

// Submit enqueues a task without blocking. Returns false when the queue is
// full.
func (p *Pool) Submit(task Task) bool {
	select {
	case p.ch <- task:
		return true
	default:
		poolLog.Warnf("task pool queue full, dropping task: %s", task.Name)
		return false
	}
}

// SubmitWait enqueues a task and blocks until it has finished or ctx expires.
func (p *Pool) SubmitWait(ctx context.Context, task Task) error {
	doneC := make(chan struct{})
	inner := task.Do
	task.Do = func(taskCtx context.Context) {
		defer close(doneC)
		inner(taskCtx)
	}
	select {
	case p.ch <- task:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-doneC:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) QueueLen() int {
	return len(p.ch)
}
