package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"village-assist/internal/embeddings"
)

// MockStore is a mock implementation of Store using testify/mock.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateDocument(ctx context.Context, filename string) (Document, error) {
	args := m.Called(ctx, filename)
	return args.Get(0).(Document), args.Error(1)
}

func (m *MockStore) GetDocument(ctx context.Context, id uuid.UUID) (Document, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Document), args.Error(1)
}

func (m *MockStore) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockStore) ListDocuments(ctx context.Context, statuses ...DocumentStatus) ([]Document, error) {
	args := m.Called(ctx, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Document), args.Error(1)
}

func (m *MockStore) SaveChunks(ctx context.Context, docID uuid.UUID, chunks []Chunk) ([]Chunk, error) {
	args := m.Called(ctx, docID, chunks)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Chunk), args.Error(1)
}

func (m *MockStore) ListChunks(ctx context.Context, docID uuid.UUID) ([]Chunk, error) {
	args := m.Called(ctx, docID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Chunk), args.Error(1)
}

func (m *MockStore) SaveEmbeddings(ctx context.Context, embs []Embedding) error {
	args := m.Called(ctx, embs)
	return args.Error(0)
}

func (m *MockStore) TopK(ctx context.Context, vector embeddings.Vector, k int) ([]SearchResult, error) {
	args := m.Called(ctx, vector, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]SearchResult), args.Error(1)
}

func (m *MockStore) SaveChatTurn(ctx context.Context, turn ChatTurn) (ChatTurn, error) {
	args := m.Called(ctx, turn)
	return args.Get(0).(ChatTurn), args.Error(1)
}

func (m *MockStore) CreateApplication(ctx context.Context, app Application) (Application, error) {
	args := m.Called(ctx, app)
	return args.Get(0).(Application), args.Error(1)
}

func (m *MockStore) CreateComplaint(ctx context.Context, c Complaint) (Complaint, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(Complaint), args.Error(1)
}

func (m *MockStore) ListApplications(ctx context.Context) ([]Application, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Application), args.Error(1)
}

func (m *MockStore) ListComplaints(ctx context.Context) ([]Complaint, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Complaint), args.Error(1)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}
