package httputil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ServeHealth runs a /healthz server for a queue worker until ctx is done.
func ServeHealth(ctx context.Context, port int, service string, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", HealthHandler(log))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return Serve(ctx, srv, service, log)
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, service string, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "service", service, "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
