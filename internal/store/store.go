package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"village-assist/internal/embeddings"
)

type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
	// StatusSuperseded marks an older version of a file that was ingested again.
	StatusSuperseded DocumentStatus = "superseded"
)

// Default statuses of citizen records.
const (
	ApplicationSubmitted = "submitted"
	ComplaintInReview    = "in_review"
)

var ErrNotFound = errors.New("not found")

type Document struct {
	ID        uuid.UUID
	Filename  string
	Status    DocumentStatus
	CreatedAt time.Time
}

type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Index      int
	Text       string
	TokenCount int
}

type Embedding struct {
	ChunkID uuid.UUID
	Vector  embeddings.Vector
	Model   string
}

type SearchResult struct {
	Chunk Chunk
	Score float32
}

// ChatTurn is one user message and the reply sent back.
type ChatTurn struct {
	ID          int64
	SessionID   string
	UserMessage string
	BotMessage  string
	SourceLang  string
	TargetLang  string
	Outcome     string
	CreatedAt   time.Time
}

// Application is a service application submitted through the portal.
type Application struct {
	ID              int64
	ApplicantName   string
	ApplicationType string
	Details         map[string]string
	Status          string
	CreatedAt       time.Time
}

// Ticket returns the citizen-facing reference number.
func (a Application) Ticket() string { return fmt.Sprintf("APP-%06d", a.ID) }

// Complaint is a geotagged grievance with an optional photo.
type Complaint struct {
	ID            int64
	Name          string
	Phone         string
	Department    string
	Details       string
	PhotoFilename string
	Latitude      float64
	Longitude     float64
	Status        string
	CreatedAt     time.Time
}

// Ticket returns the citizen-facing reference number.
func (c Complaint) Ticket() string { return fmt.Sprintf("COMP-%06d", c.ID) }

// Store defines the persistence contract shared by the Postgres and SQLite backends.
type Store interface {
	CreateDocument(ctx context.Context, filename string) (Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (Document, error)
	UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error
	// ListDocuments returns documents newest first, filtered by status when any are given.
	ListDocuments(ctx context.Context, statuses ...DocumentStatus) ([]Document, error)
	SaveChunks(ctx context.Context, docID uuid.UUID, chunks []Chunk) ([]Chunk, error)
	ListChunks(ctx context.Context, docID uuid.UUID) ([]Chunk, error)
	SaveEmbeddings(ctx context.Context, embs []Embedding) error
	// TopK returns the k chunks of ready documents closest to vector, best first.
	TopK(ctx context.Context, vector embeddings.Vector, k int) ([]SearchResult, error)

	SaveChatTurn(ctx context.Context, turn ChatTurn) (ChatTurn, error)
	CreateApplication(ctx context.Context, app Application) (Application, error)
	CreateComplaint(ctx context.Context, c Complaint) (Complaint, error)
	// ListApplications and ListComplaints return newest first.
	ListApplications(ctx context.Context) ([]Application, error)
	ListComplaints(ctx context.Context) ([]Complaint, error)

	Close() error
}

func defaultStatus(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
