package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/returns/internal/bootstrap"
	"github.com/hanko-field/returns/internal/di"
	"github.com/hanko-field/returns/internal/handlers"
	"github.com/hanko-field/returns/internal/platform/idempotency"
	"github.com/hanko-field/returns/internal/platform/observability"
	"github.com/hanko-field/returns/internal/worker"
)

func main() {
	ctx := context.Background()

	rt, err := bootstrap.Start(ctx, "api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "returns api: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	cfg := rt.Config
	logger := rt.Logger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	container, err := di.NewContainer(ctx, cfg,
		di.WithLogger(rt.Logger),
		di.WithBuildInfo(rt.Build),
		di.WithLedgerMigration(),
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
	if err := scheduler.RegisterIdempotencySweep(container.Idempotency, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize); err != nil {
		logger.Fatal("failed to register idempotency sweep", zap.Error(err))
	}
	scheduler.Start()

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	httpLogger := logger.Named("http")
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(httpLogger),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(httpLogger),
		observability.RequestLoggerMiddleware(projectID),
	}
	apiMiddlewares := []func(http.Handler) http.Handler{
		observability.ActorMiddleware,
		idempotency.Middleware(
			container.Idempotency,
			idempotency.WithHeader(cfg.Idempotency.Header),
			idempotency.WithTTL(cfg.Idempotency.TTL),
			idempotency.WithLogger(observability.NewKeyValueAdapter(logger.Named("idempotency"))),
		),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithAPIMiddlewares(apiMiddlewares...),
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthBuildInfo(rt.Build),
			handlers.WithHealthSystemService(container.Services.System),
		)),
		handlers.WithMetricsHandler(container.Metrics.Handler()),
		handlers.WithReturnRoutes(handlers.NewReturnHandlers(container.Services.Returns, container.Services.Refunds).Routes),
	}
	if container.Services.Shipments != nil {
		opts = append(opts, handlers.WithShippingRoutes(handlers.NewShippingHandlers(container.Services.Shipments).Routes))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(opts...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("returns api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := scheduler.Shutdown(); err != nil {
		logger.Error("scheduler shutdown failed", zap.Error(err))
	}
}
