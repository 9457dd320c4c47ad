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
	deps.Log.Info("notifier worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, deps); err != nil {
		deps.Log.Error("notifier service stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, deps app.Deps) error {
	n := notify.New(deps.SMS, deps.Log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeNotify, n.HandleTask)
	})
	g.Go(func() error {
		return httputil.ServeHealth(ctx, deps.Config.HealthPort, "notifier", deps.Log)
	})
	return g.Wait()
}
