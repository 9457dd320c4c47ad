package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"village-assist/internal/embeddings"
)

type PostgresStore struct {
	db  *sql.DB
	dim int
}

// NewPostgres connects and migrates. dim is the pgvector column width and
// must match the configured embedder.
func NewPostgres(dsn string, dim int) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if dim <= 0 {
		dim = 768
	}
	s := &PostgresStore{db: db, dim: dim}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Gateway and workers start together; only one of them runs the DDL.
	const lockID = 520117

	var acquired bool
	err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !acquired {
		time.Sleep(2 * time.Second)
		return nil
	}
	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			filename TEXT,
			status TEXT,
			created_at TIMESTAMPTZ DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id UUID PRIMARY KEY,
			document_id UUID REFERENCES documents(id) ON DELETE CASCADE,
			ord INT,
			text TEXT,
			token_count INT
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS embeddings (
			chunk_id UUID PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
			vector vector(%d),
			model TEXT
		)`, s.dim),
		`CREATE INDEX IF NOT EXISTS embeddings_vector_idx
			ON embeddings USING ivfflat (vector vector_cosine_ops) WITH (lists = 100)`,
		`CREATE TABLE IF NOT EXISTS chat_history (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT,
			user_message TEXT NOT NULL,
			bot_message TEXT NOT NULL,
			source_lang TEXT,
			target_lang TEXT,
			outcome TEXT,
			created_at TIMESTAMPTZ DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS applications (
			id BIGSERIAL PRIMARY KEY,
			applicant_name TEXT NOT NULL,
			application_type TEXT NOT NULL,
			details JSONB,
			status TEXT NOT NULL DEFAULT 'submitted',
			created_at TIMESTAMPTZ DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS complaints (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			department TEXT NOT NULL,
			details TEXT NOT NULL,
			photo_filename TEXT,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			status TEXT NOT NULL DEFAULT 'in_review',
			created_at TIMESTAMPTZ DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, filename string) (Document, error) {
	doc := Document{ID: uuid.New(), Filename: filename, Status: StatusProcessing}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO documents(id, filename, status) VALUES($1,$2,$3) RETURNING created_at`,
		doc.ID, filename, doc.Status).Scan(&doc.CreatedAt)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id uuid.UUID) (Document, error) {
	doc := Document{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT filename, status, created_at FROM documents WHERE id=$1`, id).
		Scan(&doc.Filename, &doc.Status, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

func (s *PostgresStore) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveChunks(ctx context.Context, docID uuid.UUID, chunks []Chunk) ([]Chunk, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		c.ID = uuid.New()
		c.DocumentID = docID
		_, err := tx.ExecContext(ctx, `INSERT INTO chunks(id, document_id, ord, text, token_count) VALUES($1,$2,$3,$4,$5)`,
			c.ID, docID, c.Index, c.Text, c.TokenCount)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) ListChunks(ctx context.Context, docID uuid.UUID) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, ord, text, token_count FROM chunks WHERE document_id=$1 ORDER BY ord`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Chunk
	for rows.Next() {
		c := Chunk{DocumentID: docID}
		if err := rows.Scan(&c.ID, &c.Index, &c.Text, &c.TokenCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveEmbeddings(ctx context.Context, embs []Embedding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, emb := range embs {
		if len(emb.Vector) != s.dim {
			return fmt.Errorf("embedding for chunk %s has %d dimensions, column expects %d", emb.ChunkID, len(emb.Vector), s.dim)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO embeddings(chunk_id, vector, model)
			VALUES($1,$2::vector,$3)
			ON CONFLICT (chunk_id) DO UPDATE SET vector=excluded.vector, model=excluded.model`,
			emb.ChunkID, vectorToString(emb.Vector), emb.Model)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) TopK(ctx context.Context, vector embeddings.Vector, k int) ([]SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.ord, c.text, c.token_count,
			1 - (e.vector <=> $1::vector) AS similarity
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE d.status = $2
		ORDER BY e.vector <=> $1::vector
		LIMIT $3`, vectorToString(vector), StatusReady, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.DocumentID, &r.Chunk.Index, &r.Chunk.Text, &r.Chunk.TokenCount, &r.Score); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PostgresStore) SaveChatTurn(ctx context.Context, t ChatTurn) (ChatTurn, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chat_history(session_id, user_message, bot_message, source_lang, target_lang, outcome)
		VALUES($1,$2,$3,$4,$5,$6) RETURNING id, created_at`,
		t.SessionID, t.UserMessage, t.BotMessage, t.SourceLang, t.TargetLang, t.Outcome).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return ChatTurn{}, fmt.Errorf("save chat turn: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) CreateApplication(ctx context.Context, a Application) (Application, error) {
	details, err := json.Marshal(a.Details)
	if err != nil {
		return Application{}, fmt.Errorf("marshal details: %w", err)
	}
	a.Status = defaultStatus(a.Status, ApplicationSubmitted)
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO applications(applicant_name, application_type, details, status)
		VALUES($1,$2,$3,$4) RETURNING id, created_at`,
		a.ApplicantName, a.ApplicationType, string(details), a.Status).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return Application{}, fmt.Errorf("create application: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) CreateComplaint(ctx context.Context, c Complaint) (Complaint, error) {
	c.Status = defaultStatus(c.Status, ComplaintInReview)
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO complaints(name, phone, department, details, photo_filename, latitude, longitude, status)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at`,
		c.Name, c.Phone, c.Department, c.Details, c.PhotoFilename, c.Latitude, c.Longitude, c.Status).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return Complaint{}, fmt.Errorf("create complaint: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListApplications(ctx context.Context) ([]Application, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, applicant_name, application_type, COALESCE(details::text, '{}'), status, created_at
		FROM applications ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanApplications(rows)
}

func (s *PostgresStore) ListComplaints(ctx context.Context) ([]Complaint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, department, details, COALESCE(photo_filename, ''),
			COALESCE(latitude, 0), COALESCE(longitude, 0), status, created_at
		FROM complaints ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Complaint
	for rows.Next() {
		var c Complaint
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Department, &c.Details, &c.PhotoFilename,
			&c.Latitude, &c.Longitude, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListDocuments(ctx context.Context, statuses ...DocumentStatus) ([]Document, error) {
	query := `SELECT id, filename, status, created_at FROM documents`
	var args []any
	if len(statuses) > 0 {
		strs := make([]string, len(statuses))
		for i, st := range statuses {
			strs[i] = string(st)
		}
		query += ` WHERE status = ANY($1)`
		args = append(args, pq.Array(strs))
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.Status, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanApplications(rows *sql.Rows) ([]Application, error) {
	var out []Application
	for rows.Next() {
		var (
			a       Application
			details string
		)
		if err := rows.Scan(&a.ID, &a.ApplicantName, &a.ApplicationType, &details, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(details), &a.Details); err != nil {
			return nil, fmt.Errorf("decode application %d details: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// vectorToString converts a Vector to pgvector literal format "[0.1,0.2,...]".
func vectorToString(v embeddings.Vector) string {
	if len(v) == 0 {
		return "[]"
	}
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = strconv.FormatFloat(float64(val), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
