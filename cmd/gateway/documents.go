package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"village-assist/internal/app"
	"village-assist/internal/extract"
	"village-assist/internal/httputil"
	"village-assist/internal/queue"
	"village-assist/internal/store"
)

var allowedDocumentTypes = map[string]bool{
	"text/plain":      true,
	"text/markdown":   true,
	"application/pdf": true,
}

func uploadHandler(deps app.Deps) http.HandlerFunc {
	maxFileSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if r.ContentLength > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httputil.Fail(deps.Log, w, "file is required", err, http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Size > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		filename := filepath.Base(header.Filename)
		contentType := header.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = extract.ContentType(filename)
		}
		if !allowedDocumentTypes[strings.TrimSpace(strings.Split(contentType, ";")[0])] || !extract.Supported(filename) {
			httputil.Fail(deps.Log, w, "unsupported file type (only PDF, TXT and MD allowed)", nil, http.StatusBadRequest)
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read file", err, http.StatusInternalServerError)
			return
		}
		text, err := extract.Text(filename, content)
		if err != nil {
			httputil.Fail(deps.Log, w, "could not extract text from file", err, http.StatusBadRequest)
			return
		}

		doc, err := deps.Store.CreateDocument(ctx, filename)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to persist document", err, http.StatusInternalServerError)
			return
		}

		task, err := queue.NewTask(queue.TaskTypeIngest, queue.IngestPayload{
			DocumentID: doc.ID,
			Filename:   filename,
			Content:    text,
		})
		if err != nil {
			fail(ctx, deps, w, "marshal payload failed", err, doc.ID, http.StatusInternalServerError)
			return
		}
		if err := queue.EnqueueWithRetry(ctx, deps.Queue, task, 3, 200*time.Millisecond); err != nil {
			fail(ctx, deps, w, "failed to enqueue document; please retry", err, doc.ID, http.StatusInternalServerError)
			return
		}

		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"document_id": doc.ID.String(),
			"status":      doc.Status,
		})
	}
}

// fail marks the document failed before writing the error response.
func fail(ctx context.Context, deps app.Deps, w http.ResponseWriter, message string, err error, docID uuid.UUID, status int) {
	log := deps.Log.With("document_id", docID)
	if docID != uuid.Nil {
		if upErr := deps.Store.UpdateDocumentStatus(ctx, docID, store.StatusFailed); upErr != nil {
			log.Error("failed to mark document failed", "err", upErr)
		}
	}
	httputil.Fail(log, w, message, err, status)
}

func listDocumentsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var statuses []store.DocumentStatus
		if s := r.URL.Query().Get("status"); s != "" {
			for _, part := range strings.Split(s, ",") {
				statuses = append(statuses, store.DocumentStatus(strings.TrimSpace(part)))
			}
		}
		docs, err := deps.Store.ListDocuments(r.Context(), statuses...)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to list documents", err, http.StatusInternalServerError)
			return
		}
		out := make([]map[string]any, 0, len(docs))
		for _, d := range docs {
			out = append(out, map[string]any{
				"document_id": d.ID.String(),
				"filename":    d.Filename,
				"status":      d.Status,
				"created_at":  d.CreatedAt,
			})
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"documents": out})
	}
}
