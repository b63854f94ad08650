package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/parity/internal/gcsuploader"
	infraBQ "github.com/dvloznov/parity/internal/infra/bigquery"
	"github.com/dvloznov/parity/internal/ingest"
	"github.com/dvloznov/parity/internal/jobs/inmemory"
	"github.com/dvloznov/parity/internal/logger"
	"github.com/dvloznov/parity/internal/parsing"
)

// Standalone parse worker. The API binary runs the same consumer in
// process; this exists for deployments that split serving from parsing.
func main() {
	var (
		project = flag.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project id (or set BQ_PROJECT env)")
		dataset = flag.String("dataset", envOr("BQ_DATASET", "parity"), "BigQuery dataset id (or set BQ_DATASET env)")
		model   = flag.String("gemini-model", os.Getenv("GEMINI_MODEL"), "Gemini model for PDF parsing; empty uses the default")
		workers = flag.Int("workers", 5, "Concurrent parse workers")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	if *project == "" {
		log.Fatal().Msg("A BigQuery project is required: the standalone worker has no in-memory mode")
	}

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	store, err := infraBQ.NewStore(ctx, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery store")
	}
	defer store.Close()
	repos := store.Repositories()

	ingestSvc := ingest.NewService(repos.Documents, repos.Transactions, gcsuploader.FetchFromGCS, parsing.NewGeminiParser(*model))

	// Initialize job store and queue
	// In production, this would be replaced with Cloud Tasks or Pub/Sub
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, *workers, jobStore)

	log.Info().Msg("Starting worker service")

	// Start consuming jobs
	if err := jobQueue.Start(ctx, ingestSvc.HandleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	// Cancel context to stop workers
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
