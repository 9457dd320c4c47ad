package sms

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockSender is a mock implementation of Sender using testify/mock.
type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendOTP(ctx context.Context, mobile, code string) error {
	return m.Called(ctx, mobile, code).Error(0)
}

func (m *MockSender) SendMessage(ctx context.Context, mobile, message string) error {
	return m.Called(ctx, mobile, message).Error(0)
}
