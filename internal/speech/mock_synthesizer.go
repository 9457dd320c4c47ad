package speech

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockSynthesizer is a mock implementation of Synthesizer using testify/mock.
type MockSynthesizer struct {
	mock.Mock
}

func (m *MockSynthesizer) Synthesize(ctx context.Context, text string, opts Options) (Result, error) {
	args := m.Called(ctx, text, opts)
	return args.Get(0).(Result), args.Error(1)
}

func (m *MockSynthesizer) Extension() string {
	return m.Called().String(0)
}
