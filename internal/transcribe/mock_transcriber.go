package transcribe

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockTranscriber is a mock implementation of Transcriber using testify/mock.
type MockTranscriber struct {
	mock.Mock
}

func (m *MockTranscriber) Transcribe(ctx context.Context, audio []byte, contentType string) (Transcript, error) {
	args := m.Called(ctx, audio, contentType)
	return args.Get(0).(Transcript), args.Error(1)
}
