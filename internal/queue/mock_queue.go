package queue

import (
	"context"

	"github.com/stretchr/testify/mock"
)

var _ Queue = (*MockQueue)(nil)

// MockQueue records enqueued tasks for handler tests. Enqueue expectations
// usually match on task type with mock.MatchedBy and decode the payload.
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(ctx context.Context, task Task) error {
	return m.Called(ctx, task).Error(0)
}

func (m *MockQueue) Worker(ctx context.Context, taskType TaskType, handler Handler) error {
	return m.Called(ctx, taskType, handler).Error(0)
}

// TaskOfType matches a Task argument by its type.
func TaskOfType(tt TaskType) any {
	return mock.MatchedBy(func(task Task) bool { return task.Type == tt })
}
