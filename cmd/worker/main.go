package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/returns/internal/bootstrap"
	"github.com/hanko-field/returns/internal/di"
	"github.com/hanko-field/returns/internal/platform/observability"
	"github.com/hanko-field/returns/internal/worker"
)

func main() {
	ctx := context.Background()

	rt, err := bootstrap.Start(ctx, "worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "returns worker: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	cfg := rt.Config
	logger := rt.Logger.Named("worker")
	ctx = observability.WithLogger(ctx, logger)

	container, err := di.NewContainer(ctx, cfg,
		di.WithLogger(rt.Logger),
		di.WithBuildInfo(rt.Build),
	)
	if err != nil {
		logger.Fatal("failed to initialise dependencies", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("dependency close error", zap.Error(err))
		}
	}()

	scheduler, err := worker.NewScheduler(logger)
	if err != nil {
		logger.Fatal("failed to initialise scheduler", zap.Error(err))
	}
	if err := scheduler.RegisterHandoffRecovery(container.Services.Shipments, cfg.Worker.HandoffInterval, cfg.Worker.HandoffBatchSize); err != nil {
		logger.Fatal("failed to register handoff recovery", zap.Error(err))
	}
	scheduler.Start()
	if err := scheduler.RunNow(); err != nil {
		logger.Warn("initial handoff sweep not started", zap.Error(err))
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	logger.Info("shutdown signal received; waiting for running jobs")
	if err := scheduler.Shutdown(); err != nil {
		logger.Error("scheduler shutdown failed", zap.Error(err))
	}
}
