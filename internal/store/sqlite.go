package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"village-assist/internal/embeddings"
)

// SQLiteStore keeps everything in a single local database file. Vectors are
// stored as JSON and ranked in process, which is fine for a few thousand chunks.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			filename TEXT,
			status TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT REFERENCES documents(id) ON DELETE CASCADE,
			ord INTEGER,
			text TEXT,
			token_count INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS chunks_document_idx ON chunks(document_id)`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			chunk_id TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
			vector TEXT NOT NULL,
			model TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS chat_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT,
			user_message TEXT NOT NULL,
			bot_message TEXT NOT NULL,
			source_lang TEXT,
			target_lang TEXT,
			outcome TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS applications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			applicant_name TEXT NOT NULL,
			application_type TEXT NOT NULL,
			details TEXT,
			status TEXT NOT NULL DEFAULT 'submitted',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS complaints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			department TEXT NOT NULL,
			details TEXT NOT NULL,
			photo_filename TEXT,
			latitude REAL,
			longitude REAL,
			status TEXT NOT NULL DEFAULT 'in_review',
			created_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, filename string) (Document, error) {
	doc := Document{ID: uuid.New(), Filename: filename, Status: StatusProcessing, CreatedAt: now()}
	_, err := s.db.ExecContext(ctx, `INSERT INTO documents(id, filename, status, created_at) VALUES(?,?,?,?)`,
		doc.ID.String(), filename, string(doc.Status), doc.CreatedAt.UnixNano())
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id uuid.UUID) (Document, error) {
	var (
		doc    = Document{ID: id}
		status string
		ts     int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT filename, status, created_at FROM documents WHERE id=?`, id.String()).
		Scan(&doc.Filename, &status, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	doc.Status = DocumentStatus(status)
	doc.CreatedAt = time.Unix(0, ts)
	return doc, nil
}

func (s *SQLiteStore) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET status=? WHERE id=?`, string(status), id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, statuses ...DocumentStatus) ([]Document, error) {
	query := `SELECT id, filename, status, created_at FROM documents`
	args := make([]any, len(statuses))
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, st := range statuses {
			marks[i] = "?"
			args[i] = string(st)
		}
		query += ` WHERE status IN (` + strings.Join(marks, ",") + `)`
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var (
			d          Document
			id, status string
			ts         int64
		)
		if err := rows.Scan(&id, &d.Filename, &status, &ts); err != nil {
			return nil, err
		}
		if d.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		d.Status = DocumentStatus(status)
		d.CreatedAt = time.Unix(0, ts)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveChunks(ctx context.Context, docID uuid.UUID, chunks []Chunk) ([]Chunk, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		c.ID = uuid.New()
		c.DocumentID = docID
		_, err := tx.ExecContext(ctx, `INSERT INTO chunks(id, document_id, ord, text, token_count) VALUES(?,?,?,?,?)`,
			c.ID.String(), docID.String(), c.Index, c.Text, c.TokenCount)
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

func (s *SQLiteStore) ListChunks(ctx context.Context, docID uuid.UUID) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, ord, text, token_count FROM chunks WHERE document_id=? ORDER BY ord`, docID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Chunk
	for rows.Next() {
		var (
			c  = Chunk{DocumentID: docID}
			id string
		)
		if err := rows.Scan(&id, &c.Index, &c.Text, &c.TokenCount); err != nil {
			return nil, err
		}
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveEmbeddings(ctx context.Context, embs []Embedding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, emb := range embs {
		vec, err := json.Marshal(emb.Vector)
		if err != nil {
			return fmt.Errorf("marshal vector: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO embeddings(chunk_id, vector, model) VALUES(?,?,?)
			ON CONFLICT(chunk_id) DO UPDATE SET vector=excluded.vector, model=excluded.model`,
			emb.ChunkID.String(), string(vec), emb.Model)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) TopK(ctx context.Context, vector embeddings.Vector, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.ord, c.text, c.token_count, e.vector
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE d.status = ?`, string(StatusReady))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			r            SearchResult
			cid, did, vj string
			vec          embeddings.Vector
		)
		if err := rows.Scan(&cid, &did, &r.Chunk.Index, &r.Chunk.Text, &r.Chunk.TokenCount, &vj); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(vj), &vec); err != nil {
			return nil, fmt.Errorf("decode vector for chunk %s: %w", cid, err)
		}
		if r.Chunk.ID, err = uuid.Parse(cid); err != nil {
			return nil, err
		}
		if r.Chunk.DocumentID, err = uuid.Parse(did); err != nil {
			return nil, err
		}
		r.Score = embeddings.CosineSimilarity(vector, vec)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *SQLiteStore) SaveChatTurn(ctx context.Context, t ChatTurn) (ChatTurn, error) {
	t.CreatedAt = now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_history(session_id, user_message, bot_message, source_lang, target_lang, outcome, created_at)
		VALUES(?,?,?,?,?,?,?)`,
		t.SessionID, t.UserMessage, t.BotMessage, t.SourceLang, t.TargetLang, t.Outcome, t.CreatedAt.UnixNano())
	if err != nil {
		return ChatTurn{}, fmt.Errorf("save chat turn: %w", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return ChatTurn{}, err
	}
	return t, nil
}

func (s *SQLiteStore) CreateApplication(ctx context.Context, a Application) (Application, error) {
	details, err := json.Marshal(a.Details)
	if err != nil {
		return Application{}, fmt.Errorf("marshal details: %w", err)
	}
	a.Status = defaultStatus(a.Status, ApplicationSubmitted)
	a.CreatedAt = now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO applications(applicant_name, application_type, details, status, created_at)
		VALUES(?,?,?,?,?)`,
		a.ApplicantName, a.ApplicationType, string(details), a.Status, a.CreatedAt.UnixNano())
	if err != nil {
		return Application{}, fmt.Errorf("create application: %w", err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return Application{}, err
	}
	return a, nil
}

func (s *SQLiteStore) CreateComplaint(ctx context.Context, c Complaint) (Complaint, error) {
	c.Status = defaultStatus(c.Status, ComplaintInReview)
	c.CreatedAt = now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO complaints(name, phone, department, details, photo_filename, latitude, longitude, status, created_at)
		VALUES(?,?,?,?,?,?,?,?,?)`,
		c.Name, c.Phone, c.Department, c.Details, c.PhotoFilename, c.Latitude, c.Longitude, c.Status, c.CreatedAt.UnixNano())
	if err != nil {
		return Complaint{}, fmt.Errorf("create complaint: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return Complaint{}, err
	}
	return c, nil
}

func (s *SQLiteStore) ListApplications(ctx context.Context) ([]Application, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, applicant_name, application_type, COALESCE(details, '{}'), status, created_at
		FROM applications ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Application
	for rows.Next() {
		var (
			a       Application
			details string
			ts      int64
		)
		if err := rows.Scan(&a.ID, &a.ApplicantName, &a.ApplicationType, &details, &a.Status, &ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(details), &a.Details); err != nil {
			return nil, fmt.Errorf("decode application %d details: %w", a.ID, err)
		}
		a.CreatedAt = time.Unix(0, ts)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListComplaints(ctx context.Context) ([]Complaint, error) {
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
		var (
			c  Complaint
			ts int64
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Department, &c.Details, &c.PhotoFilename,
			&c.Latitude, &c.Longitude, &c.Status, &ts); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(0, ts)
		out = append(out, c)
	}
	return out, rows.Err()
}

func now() time.Time { return time.Now().UTC() }
