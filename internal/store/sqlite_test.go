package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"village-assist/internal/embeddings"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteDocuments(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	doc, err := s.CreateDocument(ctx, "schemes.pdf")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, doc.Status)

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "schemes.pdf", got.Filename)
	assert.Equal(t, StatusProcessing, got.Status)

	require.NoError(t, s.UpdateDocumentStatus(ctx, doc.ID, StatusReady))
	got, err = s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, got.Status)

	_, err = s.GetDocument(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateDocumentStatus(ctx, uuid.New(), StatusFailed), ErrNotFound)

	other, err := s.CreateDocument(ctx, "notes.txt")
	require.NoError(t, err)

	all, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ready, err := s.ListDocuments(ctx, StatusReady)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, doc.ID, ready[0].ID)

	pending, err := s.ListDocuments(ctx, StatusProcessing, StatusFailed)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, other.ID, pending[0].ID)
}

func TestSQLiteTopK(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	ready, err := s.CreateDocument(ctx, "ready.txt")
	require.NoError(t, err)
	pending, err := s.CreateDocument(ctx, "pending.txt")
	require.NoError(t, err)

	readyChunks, err := s.SaveChunks(ctx, ready.ID, []Chunk{
		{Index: 0, Text: "road repair requests go to the mandal office", TokenCount: 8},
		{Index: 1, Text: "pension applications need aadhaar", TokenCount: 4},
		{Index: 2, Text: "water supply complaints", TokenCount: 3},
	})
	require.NoError(t, err)
	pendingChunks, err := s.SaveChunks(ctx, pending.ID, []Chunk{{Index: 0, Text: "not indexed yet", TokenCount: 3}})
	require.NoError(t, err)

	listed, err := s.ListChunks(ctx, ready.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "pension applications need aadhaar", listed[1].Text)

	require.NoError(t, s.SaveEmbeddings(ctx, []Embedding{
		{ChunkID: readyChunks[0].ID, Vector: embeddings.Vector{1, 0, 0}, Model: "test"},
		{ChunkID: readyChunks[1].ID, Vector: embeddings.Vector{0, 1, 0}, Model: "test"},
		{ChunkID: readyChunks[2].ID, Vector: embeddings.Vector{0.7, 0.7, 0}, Model: "test"},
		{ChunkID: pendingChunks[0].ID, Vector: embeddings.Vector{1, 0, 0}, Model: "test"},
	}))
	require.NoError(t, s.UpdateDocumentStatus(ctx, ready.ID, StatusReady))

	results, err := s.TopK(ctx, embeddings.Vector{1, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, readyChunks[0].ID, results[0].Chunk.ID)
	assert.Equal(t, readyChunks[2].ID, results[1].Chunk.ID)
	assert.Greater(t, results[0].Score, results[1].Score)

	none, err := s.TopK(ctx, embeddings.Vector{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteRecords(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	first, err := s.CreateApplication(ctx, Application{
		ApplicantName:   "Lakshmi",
		ApplicationType: "Service Application",
		Details:         map[string]string{"email": "l@example.com", "phone": "9876543210", "purpose": "ration card"},
	})
	require.NoError(t, err)
	assert.Equal(t, "APP-000001", first.Ticket())
	assert.Equal(t, ApplicationSubmitted, first.Status)

	second, err := s.CreateApplication(ctx, Application{ApplicantName: "Ravi", ApplicationType: "Service Application"})
	require.NoError(t, err)

	apps, err := s.ListApplications(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, second.ID, apps[0].ID)
	assert.Equal(t, "ration card", apps[1].Details["purpose"])

	c, err := s.CreateComplaint(ctx, Complaint{
		Name: "Suresh", Phone: "9876543210", Department: "Roads",
		Details: "pothole near school", PhotoFilename: "complaint_x.png",
		Latitude: 17.38, Longitude: 78.48,
	})
	require.NoError(t, err)
	assert.Equal(t, "COMP-000001", c.Ticket())

	complaints, err := s.ListComplaints(ctx)
	require.NoError(t, err)
	require.Len(t, complaints, 1)
	assert.Equal(t, ComplaintInReview, complaints[0].Status)
	assert.InDelta(t, 17.38, complaints[0].Latitude, 1e-9)
	assert.Equal(t, "complaint_x.png", complaints[0].PhotoFilename)

	turn, err := s.SaveChatTurn(ctx, ChatTurn{SessionID: "s1", UserMessage: "hi", BotMessage: "hello", Outcome: "greeting"})
	require.NoError(t, err)
	assert.NotZero(t, turn.ID)
}
