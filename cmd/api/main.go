package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/parity/internal/analysis"
	"github.com/dvloznov/parity/internal/api/handlers"
	"github.com/dvloznov/parity/internal/api/middleware"
	"github.com/dvloznov/parity/internal/gcs"
	"github.com/dvloznov/parity/internal/gcsuploader"
	infraBQ "github.com/dvloznov/parity/internal/infra/bigquery"
	"github.com/dvloznov/parity/internal/ingest"
	"github.com/dvloznov/parity/internal/jobs/inmemory"
	"github.com/dvloznov/parity/internal/logger"
	"github.com/dvloznov/parity/internal/parsing"
	"github.com/dvloznov/parity/internal/service"
	"github.com/dvloznov/parity/internal/storage"
	"github.com/dvloznov/parity/internal/storage/memory"
)

func main() {
	// Parse command-line flags
	var (
		port    = flag.String("port", "8080", "HTTP server port")
		project = flag.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project id (or set BQ_PROJECT env); empty runs with in-memory storage")
		dataset = flag.String("dataset", envOr("BQ_DATASET", "parity"), "BigQuery dataset id (or set BQ_DATASET env)")
		bucket  = flag.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket name for document uploads (or set GCS_BUCKET env)")
		model   = flag.String("gemini-model", os.Getenv("GEMINI_MODEL"), "Gemini model for PDF parsing; empty uses the default")
		workers = flag.Int("workers", 5, "Concurrent parse workers")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	ctx := context.Background()

	// Initialize repositories
	var repos storage.Repositories
	if *project != "" {
		store, err := infraBQ.NewStore(ctx, *project, *dataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery store")
		}
		defer store.Close()
		repos = store.Repositories()
		log.Info().Str("project", *project).Str("dataset", *dataset).Msg("Using BigQuery storage")
	} else {
		repos = memory.NewStore().Repositories()
		log.Warn().Msg("No BigQuery project configured - running with in-memory storage")
	}

	var objectStore gcs.StorageService
	var fetch ingest.FetchFunc
	if *bucket != "" {
		objectStore = gcsuploader.NewGCSStorageService()
		fetch = gcsuploader.FetchFromGCS
	} else {
		log.Warn().Msg("No GCS bucket configured - documents are carried inline through the queue")
	}

	// Initialize job infrastructure and the ingestion worker
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, *workers, jobStore)

	ingestSvc := ingest.NewService(repos.Documents, repos.Transactions, fetch, parsing.NewGeminiParser(*model))

	workerCtx, cancelWorker := context.WithCancel(logger.WithContext(ctx, log))
	defer cancelWorker()

	go func() {
		log.Info().Msg("Starting parse worker")
		if err := jobQueue.Start(workerCtx, ingestSvc.HandleJob); err != nil {
			log.Error().Err(err).Msg("Parse worker stopped with error")
		}
	}()

	svc := service.New(repos, jobQueue, objectStore, *bucket, analysis.DefaultConfig())

	// Initialize handlers
	dealsHandler := handlers.NewDealsHandler(svc, log)
	documentsHandler := handlers.NewDocumentsHandler(svc, log)
	snapshotsHandler := handlers.NewSnapshotsHandler(svc, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	// Create router
	mux := http.NewServeMux()

	// Deals endpoints
	mux.HandleFunc("/api/deals", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			dealsHandler.Create(w, r)
		case http.MethodGet:
			dealsHandler.List(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/deals/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/deals/")
		dealID, sub, _ := strings.Cut(rest, "/")
		if dealID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Deal ID is required")
			return
		}

		switch {
		case sub == "" && r.Method == http.MethodGet:
			dealsHandler.Get(w, r, dealID)
		case sub == "documents" && r.Method == http.MethodPost:
			dealsHandler.IngestDocument(w, r, dealID)
		case sub == "documents" && r.Method == http.MethodGet:
			dealsHandler.ListDocuments(w, r, dealID)
		case sub == "export" && r.Method == http.MethodPost:
			dealsHandler.Export(w, r, dealID)
		case sub == "overrides" && r.Method == http.MethodPost:
			dealsHandler.AddOverride(w, r, dealID)
		case sub == "overrides" && r.Method == http.MethodGet:
			dealsHandler.ListOverrides(w, r, dealID)
		case sub == "runs" && r.Method == http.MethodGet:
			dealsHandler.ListRuns(w, r, dealID)
		case sub == "snapshots" && r.Method == http.MethodGet:
			dealsHandler.ListSnapshots(w, r, dealID)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Documents endpoints
	mux.HandleFunc("/api/documents/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, "/api/documents/")
		documentID, sub, _ := strings.Cut(rest, "/")
		if documentID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Document ID is required")
			return
		}
		switch sub {
		case "":
			documentsHandler.Get(w, r, documentID)
		case "transactions":
			documentsHandler.ListTransactions(w, r, documentID)
		default:
			middleware.WriteError(w, http.StatusNotFound, "Not found")
		}
	})

	// Snapshots endpoints
	mux.HandleFunc("/api/snapshots/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, "/api/snapshots/")
		snapshotID, sub, _ := strings.Cut(rest, "/")
		if snapshotID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Snapshot ID is required")
			return
		}
		switch sub {
		case "":
			snapshotsHandler.Get(w, r, snapshotID)
		case "payload":
			snapshotsHandler.Payload(w, r, snapshotID)
		default:
			middleware.WriteError(w, http.StatusNotFound, "Not found")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(mux),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Cancel worker context
	cancelWorker()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
