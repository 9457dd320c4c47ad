package main

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"village-assist/internal/app"
	"village-assist/internal/httputil"
)

func voiceToTextHandler(deps app.Deps) http.HandlerFunc {
	maxSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Transcriber == nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, "speech recognition is not configured")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)
		file, header, err := r.FormFile("audio")
		if err != nil {
			deps.Log.Warn("audio upload rejected", "err", err)
			httputil.WriteError(w, http.StatusBadRequest, "audio file is required")
			return
		}
		defer file.Close()

		audio, err := io.ReadAll(file)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read audio", err, http.StatusBadRequest)
			return
		}
		if len(audio) == 0 {
			httputil.WriteError(w, http.StatusBadRequest, "audio file is empty")
			return
		}

		tr, err := deps.Transcriber.Transcribe(r.Context(), audio, header.Header.Get("Content-Type"))
		if err != nil {
			deps.Log.Error("transcription failed", "err", err)
			httputil.WriteError(w, http.StatusBadGateway, "could not transcribe audio")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"ok":       true,
			"text":     tr.Text,
			"language": tr.Language,
		})
	}
}

type speakRequest struct {
	Text     string `json:"text" validate:"max=4000"`
	Language string `json:"language" validate:"omitempty,min=2,max=8"`
}

func textToSpeechHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Speaker == nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, "speech synthesis is not configured")
			return
		}
		var req speakRequest
		if !decodeJSON(deps, w, r, &req) {
			return
		}
		language := req.Language
		if language == "" {
			language = deps.Pipeline.Template().Language
		}

		// Near-empty text is replaced by the speaker's fallback prompt.
		url, err := speakToFile(r.Context(), deps, req.Text, language)
		if err != nil {
			deps.Log.Error("speech synthesis failed", "err", err)
			httputil.WriteError(w, http.StatusBadGateway, "could not synthesize speech")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "audio_url": url})
	}
}

func audioFileHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "filename")
		if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
			http.NotFound(w, r)
			return
		}
		path := filepath.Join(deps.Config.TTSDir, name)
		if _, err := os.Stat(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				deps.Log.Error("failed to stat audio file", "err", err, "file", name)
			}
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, path)
	}
}
