package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"clubhub/internal/app"
	"clubhub/internal/config"
	"clubhub/internal/event"
	"clubhub/internal/logger"
	"clubhub/internal/registration"
	"clubhub/internal/report"
)

// Worker renders queued attendance reports.
func main() {
	cfg := config.Load()
	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend != "redis" {
		zl.Fatal("worker needs QUEUE_BACKEND=redis; the API consumes the in-memory queue itself")
	}
	if cfg.DocstoreBackend == "memory" {
		zl.Fatal("worker needs a shared document store (postgres or firestore)")
	}

	backends, err := app.Open(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("backend init failed", zap.Error(err))
	}
	defer backends.Close()

	events := event.NewService(backends.Store, zl)
	regs := registration.NewService(backends.Store, events, zl)
	reports := report.NewService(backends.Store, events, regs, backends.Queue, app.ReportStorage(cfg, app.Cloudinary(cfg)), zl)

	msgs, err := backends.Queue.Consume(ctx)
	if err != nil {
		zl.Fatal("queue consume init failed", zap.Error(err))
	}
	zl.Info("worker started, waiting for report jobs")
	reports.Run(ctx, msgs)
	zl.Info("worker stopped")
}
