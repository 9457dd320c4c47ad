package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNoWorker is returned by the local queue when no worker consumes a task type.
var ErrNoWorker = errors.New("no worker registered for task type")

// Local is an in-process queue for single-binary deployments. Tasks are
// handled on their own goroutine by the worker registered for their type.
type Local struct {
	log *slog.Logger

	mu       sync.RWMutex
	handlers map[TaskType]localWorker
	wg       sync.WaitGroup
}

type localWorker struct {
	ctx     context.Context
	handler Handler
}

func NewLocal(log *slog.Logger) *Local {
	return &Local{log: log, handlers: make(map[TaskType]localWorker)}
}

func (q *Local) Enqueue(_ context.Context, task Task) error {
	if task.Type == "" {
		return errors.New("task type required")
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	q.mu.RLock()
	w, ok := q.handlers[task.Type]
	q.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoWorker, task.Type)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.run(w, task)
	}()
	return nil
}

func (q *Local) run(w localWorker, task Task) {
	for {
		if d := time.Until(task.NotBefore); d > 0 {
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(d):
			}
		}
		err := w.handler(w.ctx, task)
		if err == nil {
			return
		}
		if !nextAttempt(&task) {
			q.log.Error("task permanently failed", "id", task.ID, "type", task.Type, "original_err", err)
			return
		}
	}
}

// Worker registers handler for taskType and blocks until ctx is cancelled.
func (q *Local) Worker(ctx context.Context, taskType TaskType, handler Handler) error {
	q.mu.Lock()
	if _, ok := q.handlers[taskType]; ok {
		q.mu.Unlock()
		return fmt.Errorf("worker already registered for %s", taskType)
	}
	q.handlers[taskType] = localWorker{ctx: ctx, handler: handler}
	q.mu.Unlock()

	<-ctx.Done()

	q.mu.Lock()
	delete(q.handlers, taskType)
	q.mu.Unlock()
	return nil
}

// Wait blocks until every dispatched task has finished.
func (q *Local) Wait() {
	q.wg.Wait()
}
