// Package ingest turns governance documents into chunks and embeddings that
// the retriever can search.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"village-assist/internal/cache"
	"village-assist/internal/chunker"
	"village-assist/internal/embeddings"
	"village-assist/internal/extract"
	"village-assist/internal/queue"
	"village-assist/internal/store"
)

// DefaultChunking is the word window used for governance documents.
var DefaultChunking = chunker.Options{MaxWords: 400, Overlap: 80}

// Ingester chunks, embeds and indexes documents.
type Ingester struct {
	store    store.Store
	embedder embeddings.Embedder
	cache    cache.Cache
	model    string
	chunking chunker.Options
	log      *slog.Logger
}

// New returns an Ingester. A nil embedder stores chunks without vectors; a
// nil cache skips invalidation.
func New(st store.Store, e embeddings.Embedder, c cache.Cache, model string, log *slog.Logger) *Ingester {
	return &Ingester{
		store:    st,
		embedder: e,
		cache:    c,
		model:    model,
		chunking: DefaultChunking,
		log:      log,
	}
}

// HandleTask is the queue handler for ingest tasks.
func (i *Ingester) HandleTask(ctx context.Context, task queue.Task) error {
	var payload queue.IngestPayload
	if err := task.Decode(&payload); err != nil {
		return err
	}
	return i.Ingest(ctx, payload.DocumentID, payload.Filename, payload.Content)
}

// Ingest indexes text as the content of an existing document and marks it
// ready, superseding older ready documents with the same filename. On failure
// the document is marked failed and the error returned so the queue can
// retry; a retry reuses chunks saved by an earlier attempt.
func (i *Ingester) Ingest(ctx context.Context, docID uuid.UUID, filename, text string) error {
	log := i.log.With("document_id", docID, "filename", filename)

	doc, err := i.store.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	if doc.Status == store.StatusReady {
		log.Info("document already ingested")
		return nil
	}

	if err := i.index(ctx, doc, text); err != nil {
		if upErr := i.store.UpdateDocumentStatus(ctx, docID, store.StatusFailed); upErr != nil {
			log.Error("failed to mark document failed", "err", upErr)
		}
		return err
	}

	if err := i.store.UpdateDocumentStatus(ctx, docID, store.StatusReady); err != nil {
		return fmt.Errorf("mark document ready: %w", err)
	}
	i.supersede(ctx, doc)
	if i.cache != nil {
		if err := i.cache.Flush(ctx); err != nil {
			log.Warn("failed to flush answer cache", "err", err)
		}
	}
	log.Info("document ingested")
	return nil
}

// supersede retires other ready versions of doc's file so retrieval only sees
// the latest content.
func (i *Ingester) supersede(ctx context.Context, doc store.Document) {
	docs, err := i.store.ListDocuments(ctx, store.StatusReady)
	if err != nil {
		i.log.Warn("failed to list documents for supersede", "document_id", doc.ID, "err", err)
		return
	}
	for _, d := range docs {
		if d.ID == doc.ID || d.Filename != doc.Filename {
			continue
		}
		if err := i.store.UpdateDocumentStatus(ctx, d.ID, store.StatusSuperseded); err != nil {
			i.log.Warn("failed to supersede document", "document_id", d.ID, "err", err)
			continue
		}
		i.log.Info("document superseded", "document_id", d.ID, "by", doc.ID, "filename", d.Filename)
	}
}

func (i *Ingester) index(ctx context.Context, doc store.Document, text string) error {
	chunks, err := i.store.ListChunks(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}
	if len(chunks) == 0 {
		parts := chunker.Split(text, i.chunking)
		if len(parts) == 0 {
			return errors.New("document has no text")
		}
		toSave := make([]store.Chunk, len(parts))
		for n, c := range parts {
			toSave[n] = store.Chunk{Index: c.Index, Text: c.Text, TokenCount: c.Words}
		}
		if chunks, err = i.store.SaveChunks(ctx, doc.ID, toSave); err != nil {
			return fmt.Errorf("save chunks: %w", err)
		}
	}

	if i.embedder == nil {
		i.log.Warn("no embedder configured; chunks stored without vectors", "document_id", doc.ID)
		return nil
	}

	texts := make([]string, len(chunks))
	for n, c := range chunks {
		texts[n] = fmt.Sprintf("Document: %s\n\n%s", doc.Filename, c.Text)
	}
	vectors, err := i.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("generate embeddings: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	embs := make([]store.Embedding, len(chunks))
	for n, c := range chunks {
		embs[n] = store.Embedding{ChunkID: c.ID, Vector: vectors[n], Model: i.model}
	}
	if err := i.store.SaveEmbeddings(ctx, embs); err != nil {
		return fmt.Errorf("save embeddings: %w", err)
	}
	return nil
}

// IngestFile extracts the file at path, registers it as a new document and
// indexes it inline.
func (i *Ingester) IngestFile(ctx context.Context, path string) (store.Document, error) {
	name := filepath.Base(path)
	if !extract.Supported(name) {
		return store.Document{}, fmt.Errorf("%w: %s", extract.ErrUnsupported, name)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return store.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	text, err := extract.Text(name, content)
	if err != nil {
		return store.Document{}, err
	}

	doc, err := i.store.CreateDocument(ctx, name)
	if err != nil {
		return store.Document{}, fmt.Errorf("create document: %w", err)
	}
	if err := i.Ingest(ctx, doc.ID, name, text); err != nil {
		doc.Status = store.StatusFailed
		return doc, err
	}
	doc.Status = store.StatusReady
	return doc, nil
}
