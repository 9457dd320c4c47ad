package otp

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockCodeStore is a mock implementation of CodeStore using testify/mock.
type MockCodeStore struct {
	mock.Mock
}

func (m *MockCodeStore) Save(ctx context.Context, mobile, code string, ttl time.Duration) error {
	return m.Called(ctx, mobile, code, ttl).Error(0)
}

func (m *MockCodeStore) Get(ctx context.Context, mobile string) (string, error) {
	args := m.Called(ctx, mobile)
	return args.String(0), args.Error(1)
}

func (m *MockCodeStore) Delete(ctx context.Context, mobile string) error {
	return m.Called(ctx, mobile).Error(0)
}

func (m *MockCodeStore) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	args := m.Called(ctx, key, window)
	return args.Get(0).(int64), args.Error(1)
}
