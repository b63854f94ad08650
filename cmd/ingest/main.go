package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/parity/internal/domain"
	"github.com/dvloznov/parity/internal/gcsuploader"
	infraBQ "github.com/dvloznov/parity/internal/infra/bigquery"
	"github.com/dvloznov/parity/internal/ingest"
	"github.com/dvloznov/parity/internal/jobs"
	"github.com/dvloznov/parity/internal/logger"
	"github.com/dvloznov/parity/internal/parsing"
)

// One-shot ingestion: registers a document for a deal and runs the parse
// path synchronously, without going through the API server or job queue.
// Useful for backfilling statements that already live in GCS.
func main() {
	log := logger.New()

	projectID := flag.String("project", os.Getenv("BQ_PROJECT"), "GCP project ID (required)")
	datasetID := flag.String("dataset", envOr("BQ_DATASET", "parity"), "BigQuery dataset ID")
	dealID := flag.String("deal", "", "Deal ID the document belongs to (required)")
	gcsURI := flag.String("gcs-uri", "", "GCS URI of the statement (e.g. gs://bucket/file.pdf) (required)")
	fileType := flag.String("file-type", "pdf", "Statement file type: csv, xlsx or pdf")
	createdBy := flag.String("created-by", "ingest-cli", "Caller identity recorded on the document")
	geminiModel := flag.String("gemini-model", envOr("GEMINI_MODEL", "gemini-2.5-flash"), "Gemini model for PDF parsing")
	flag.Parse()

	if *projectID == "" {
		log.Fatal().Msg("Error: -project is required (or set BQ_PROJECT)")
	}
	if *dealID == "" {
		log.Fatal().Msg("Error: -deal is required")
	}
	if *gcsURI == "" {
		log.Fatal().Msg("Error: -gcs-uri is required")
	}
	if *fileType != "csv" && *fileType != "xlsx" && *fileType != "pdf" {
		log.Fatal().Str("file_type", *fileType).Msg("Error: -file-type must be csv, xlsx or pdf")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store, err := infraBQ.NewStore(ctx, *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery store")
	}
	defer store.Close()
	repos := store.Repositories()

	deal, err := repos.Deals.GetDeal(ctx, *dealID)
	if err != nil {
		log.Fatal().Err(err).Str("deal_id", *dealID).Msg("Failed to load deal")
	}

	doc := &domain.Document{
		ID:         uuid.New().String(),
		DealID:     deal.ID,
		Status:     domain.DocumentStatusPending,
		FileName:   path.Base(*gcsURI),
		FileType:   *fileType,
		StorageURI: *gcsURI,
		CreatedBy:  *createdBy,
		CreatedAt:  time.Now().UTC(),
	}
	if err := repos.Documents.CreateDocument(ctx, doc); err != nil {
		log.Fatal().Err(err).Msg("Failed to create document")
	}

	log.Info().
		Str("document_id", doc.ID).
		Str("deal_id", deal.ID).
		Str("gcs_uri", *gcsURI).
		Msg("Starting ingestion")

	svc := ingest.NewService(repos.Documents, repos.Transactions, gcsuploader.FetchFromGCS, parsing.NewGeminiParser(*geminiModel))

	job := &jobs.ParseDocumentJob{
		JobID:        uuid.New().String(),
		DealID:       deal.ID,
		DocumentID:   doc.ID,
		StorageURI:   *gcsURI,
		FileType:     *fileType,
		DealCurrency: deal.Currency,
		CreatedAt:    time.Now().UTC(),
	}
	if err := svc.ProcessDocument(ctx, job); err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	// A nil error covers both success and a terminal parse failure recorded
	// on the document, so report the final status either way.
	final, err := repos.Documents.GetDocument(ctx, doc.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read back document status")
	}

	fmt.Printf("Document %s: %s\n", final.ID, final.Status)
	if final.ErrorMessage != "" {
		fmt.Printf("  error: %s\n", final.ErrorMessage)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
