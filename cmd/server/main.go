package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sightlinehq/sightline/api"
	migrations "github.com/sightlinehq/sightline/db"
	"github.com/sightlinehq/sightline/internal/config"
	"github.com/sightlinehq/sightline/internal/db"
	"github.com/sightlinehq/sightline/internal/engine"
	"github.com/sightlinehq/sightline/internal/hub"
	"github.com/sightlinehq/sightline/internal/jobs"
	"github.com/sightlinehq/sightline/internal/media"
	"github.com/sightlinehq/sightline/internal/pipeline"
	"github.com/sightlinehq/sightline/internal/repository/sqlite"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	api.SetLogger(logger)

	logger.Info("starting sightline server", "version", version, "built_at", buildTime)

	ctx := context.Background()

	// Open database connection and apply migrations
	database, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	if err := db.Migrate(ctx, database, migrations.Migrations); err != nil {
		log.Fatalf("Failed to migrate DB: %v", err)
	}

	repo := sqlite.New(database, logger)
	notifier := hub.New(logger)

	mediaClient := media.NewClient(cfg.MediaConfig)
	engineClient, err := engine.NewClient(cfg.EngineConfig, logger)
	if err != nil {
		log.Fatalf("Failed to create engine client: %v", err)
	}

	// Background match workers: submission acceptance and match processing
	// are connected only through the job queue.
	jobRepo := jobs.NewRepository(database)
	pool := jobs.NewWorkerPool(jobRepo, map[string]jobs.Handler{}, logger, cfg.WorkerCount)

	pipe := pipeline.New(repo, repo, mediaClient, engineClient, pool, notifier, cfg.EngineConfig.Timeout, logger)

	pool.Register(jobs.TypeMatchAnalyze, pipe.HandleMatchJob)
	pool.OnDeadLetter(pipe.HandleDeadLetter)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	pool.Start(workerCtx)

	handler := api.SetupRoutes(cfg, version, buildTime, pipe, api.Repos{Reports: repo, Locations: repo}, notifier)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	stopWorkers()
	pool.Stop()

	// Close database connection
	if err := database.Close(); err != nil {
		logger.Error("closing db", "err", err)
	}

	logger.Info("server exited")
}
