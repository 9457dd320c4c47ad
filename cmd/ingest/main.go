package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"village-assist/internal/app"
	"village-assist/internal/httputil"
	"village-assist/internal/ingest"
	"village-assist/internal/queue"
)

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Close()
	deps.Log.Info("ingest worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, deps); err != nil {
		deps.Log.Error("ingest service stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, deps app.Deps) error {
	ing := ingest.New(deps.Store, deps.Embedder, deps.Cache, deps.Config.EmbeddingModel, deps.Log)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeIngest, ing.HandleTask)
	})

	if dir := deps.Config.DocsDir; dir != "" {
		g.Go(func() error {
			return ingest.NewWatcher(ing, dir, ingest.DefaultSettle).Run(ctx)
		})
	}

	g.Go(func() error {
		return httputil.ServeHealth(ctx, deps.Config.HealthPort, "ingest", deps.Log)
	})

	return g.Wait()
}
