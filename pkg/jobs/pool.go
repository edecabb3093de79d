// Package jobs provides a bounded worker pool for batch dispatch work.
package jobs

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Task is a unit of batch work identified for logging purposes.
type Task struct {
	ID  string
	Run func(context.Context) error
}

// Pool executes batches of tasks with a fixed number of workers. Failed tasks
// are logged and counted, never retried; retry policy belongs to the caller.
type Pool struct {
	workers int
	logger  *zap.Logger
}

// NewPool builds a pool with the given concurrency.
func NewPool(workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{workers: workers, logger: logger}
}

// Run executes all tasks and returns the number that failed. It blocks until
// every task has finished or the context is cancelled.
func (p *Pool) Run(ctx context.Context, tasks []Task) int {
	if len(tasks) == 0 {
		return 0
	}

	queue := make(chan Task)
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				if err := task.Run(ctx); err != nil {
					p.logger.Warn("task failed", zap.String("task_id", task.ID), zap.Error(err))
					mu.Lock()
					failed++
					mu.Unlock()
				}
			}
		}()
	}

	for _, task := range tasks {
		select {
		case <-ctx.Done():
			close(queue)
			wg.Wait()
			return failed
		case queue <- task:
		}
	}
	close(queue)
	wg.Wait()
	return failed
}
