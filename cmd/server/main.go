// Package main is the entrypoint for the forensiq orchestrator server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forensiq/forensiq/internal/api"
	"github.com/forensiq/forensiq/internal/api/handler"
	mw "github.com/forensiq/forensiq/internal/api/middleware"
	"github.com/forensiq/forensiq/internal/api/response"
	"github.com/forensiq/forensiq/internal/assembler"
	"github.com/forensiq/forensiq/internal/blob"
	"github.com/forensiq/forensiq/internal/cluster"
	"github.com/forensiq/forensiq/internal/config"
	"github.com/forensiq/forensiq/internal/engine"
	"github.com/forensiq/forensiq/internal/lock"
	"github.com/forensiq/forensiq/internal/manifest"
	"github.com/forensiq/forensiq/internal/queue"
	"github.com/forensiq/forensiq/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "cluster_api", cfg.Cluster.APIURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis queue
	redisQueue, err := queue.NewRedisQueue(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis queue: %w", err)
	}
	defer redisQueue.Close()

	if err := redisQueue.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create blob client
	blobClient, err := blob.NewS3Client(cfg.Blob)
	if err != nil {
		return fmt.Errorf("create blob client: %w", err)
	}
	slog.Info("blob storage client initialized", "endpoint", cfg.Blob.Endpoint)

	// 6. Wire the pipeline services
	pgStore := store.NewPostgresStore(pool)
	clusterClient := cluster.NewHTTPClient(cfg.Cluster, blobClient, cfg.Blob.TmpBucket, logger)
	locks := lock.NewManager(pgStore, logger)
	eng := engine.NewService(pgStore, redisQueue, locks, clusterClient, cfg.Pipeline, logger)
	builder := manifest.NewBuilder(pgStore, blobClient, cfg.Blob, cfg.Pipeline.GOPSize)
	asm := assembler.NewService(pgStore, blobClient, cfg.Blob, cfg.Pipeline, logger)

	// 7. Build router with dependencies
	deps := api.Dependencies{
		Logger: logger,
		Auth:   mw.NewAuth(cfg.Auth.APIKeyHash),

		HealthHandler: healthHandler(pgStore, redisQueue),

		StartJobHandler:  handler.NewStartJobHandler(eng),
		ManifestHandler:  handler.NewManifestHandler(builder),
		SubmitJobHandler: handler.NewSubmitJobHandler(eng),

		StatusHandler:            handler.NewStatusHandler(eng),
		EvalAssetStatusHandler:   handler.NewEvalAssetStatusHandler(eng),
		EvalEmbeddedCodesHandler: handler.NewEvalEmbeddedCodesHandler(eng),
		EvalJobProgressHandler:   handler.NewEvalJobProgressHandler(eng),
		UpdateJobHandler:         handler.NewUpdateJobHandler(eng),
		CancelJobHandler:         handler.NewCancelJobHandler(eng),

		UpdateMMRKHandler:      handler.NewUpdateMMRKHandler(eng),
		RegisterRendersHandler: handler.NewRegisterRendersHandler(eng),

		AssembleHandler:      handler.NewAssembleHandler(asm),
		DeleteRendersHandler: handler.NewDeleteRendersHandler(asm),

		DeletePodsHandler: handler.NewDeletePodsHandler(clusterClient),
		DeleteJobsHandler: handler.NewDeleteJobsHandler(clusterClient),
		JobLogsHandler:    handler.NewJobLogsHandler(clusterClient),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and queue connectivity.
func healthHandler(s store.Store, q queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"queue":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := q.Ping(r.Context()); err != nil {
			checks["queue"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["queue"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
