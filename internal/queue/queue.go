package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"village-assist/internal/retry"
)

// TaskType enumerates supported task categories.
type TaskType string

const (
	TaskTypeIngest TaskType = "ingest"
	TaskTypeNotify TaskType = "notify"
)

// Task represents a unit of work handed from the gateway to a worker.
type Task struct {
	ID          uuid.UUID
	Type        TaskType
	Payload     []byte
	Attempts    int
	MaxAttempts int
	NotBefore   time.Time
}

// IngestPayload carries an uploaded document's extracted text to the ingest worker.
type IngestPayload struct {
	DocumentID uuid.UUID `json:"document_id"`
	Filename   string    `json:"filename"`
	Content    string    `json:"content"`
}

// NotifyPayload asks the notifier to send an SMS acknowledgement.
type NotifyPayload struct {
	Mobile  string `json:"mobile"`
	Ticket  string `json:"ticket"`
	Message string `json:"message"`
}

type Handler func(context.Context, Task) error

// Queue exposes a minimal contract to enqueue and consume tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Worker(ctx context.Context, taskType TaskType, handler Handler) error
}

// NewTask marshals payload into a task of the given type.
func NewTask(taskType TaskType, payload any) (Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("marshal %s payload: %w", taskType, err)
	}
	return Task{Type: taskType, Payload: body, NotBefore: time.Now()}, nil
}

// Decode unmarshals the task payload into v.
func (t Task) Decode(v any) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", t.Type, err)
	}
	return nil
}

// EnqueueWithRetry attempts to enqueue with retries and exponential backoff.
func EnqueueWithRetry(ctx context.Context, q Queue, task Task, attempts int, base time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if err := q.Enqueue(ctx, task); err == nil {
			return nil
		} else if attempt == attempts-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry.ExponentialBackoff(attempt, base)):
		}
	}
	return nil
}

// nextAttempt bumps the attempt counter and reports whether the task should
// be tried again, scheduling it with exponential backoff.
func nextAttempt(task *Task) bool {
	task.Attempts++
	if task.MaxAttempts == 0 {
		task.MaxAttempts = 5
	}
	if task.Attempts >= task.MaxAttempts {
		return false
	}
	task.NotBefore = time.Now().Add(retry.ExponentialBackoff(task.Attempts, time.Second))
	return true
}
