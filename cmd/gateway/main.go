package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"village-assist/internal/app"
	"village-assist/internal/httputil"
	"village-assist/internal/ingest"
	"village-assist/internal/notify"
	"village-assist/internal/queue"
)

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Without a broker the gateway consumes its own tasks.
	if deps.Config.QueueProvider == "none" {
		ing := ingest.New(deps.Store, deps.Embedder, deps.Cache, deps.Config.EmbeddingModel, deps.Log)
		n := notify.New(deps.SMS, deps.Log)
		g.Go(func() error { return deps.Queue.Worker(ctx, queue.TaskTypeIngest, ing.HandleTask) })
		g.Go(func() error { return deps.Queue.Worker(ctx, queue.TaskTypeNotify, n.HandleTask) })
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", deps.Config.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error { return httputil.Serve(ctx, srv, "gateway", deps.Log) })

	if err := g.Wait(); err != nil {
		deps.Log.Error("gateway stopped", "err", err)
	}
}

func newRouter(deps app.Deps) *chi.Mux {
	// Chat waits on inference and translation, so the request timeout leaves
	// headroom over the inference timeout.
	timeout := time.Duration(deps.Config.InferenceTimeout)*time.Second + 30*time.Second
	r := httputil.NewRouter(deps.Log, timeout)

	r.Route("/api", func(r chi.Router) {
		r.Use(verifiedMobile(deps))

		r.Post("/chat", chatHandler(deps))
		r.Post("/voice-to-text", voiceToTextHandler(deps))
		r.Post("/text-to-speech", textToSpeechHandler(deps))

		r.Post("/send-otp", sendOTPHandler(deps))
		r.Post("/verify-otp", verifyOTPHandler(deps))

		r.Post("/apply", applyHandler(deps))
		r.Post("/submit-complaint", submitComplaintHandler(deps))
		r.Get("/get-applications", listApplicationsHandler(deps))

		r.Post("/documents/upload", uploadHandler(deps))
		r.Get("/documents", listDocumentsHandler(deps))
	})
	r.Get("/tts/{filename}", audioFileHandler(deps))
	r.Get("/healthz", httputil.HealthHandler(deps.Log))
	return r
}

const maxJSONBody = 64 << 10

// decodeJSON decodes and validates a JSON request body of at most 64KiB,
// writing the error response itself when it returns false.
func decodeJSON(deps app.Deps, w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeJSONLimit(deps, w, r, maxJSONBody, v)
}

func decodeJSONLimit(deps app.Deps, w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		deps.Log.Warn("invalid json payload", "err", err, "path", r.URL.Path)
		httputil.WriteError(w, http.StatusBadRequest, "invalid payload")
		return false
	}
	if err := httputil.Validator.Struct(v); err != nil {
		httputil.ValidationError(deps.Log, w, err)
		return false
	}
	return true
}
