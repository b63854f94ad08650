package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	infraBQ "github.com/dvloznov/parity/internal/infra/bigquery"
	"github.com/dvloznov/parity/internal/logger"
	"github.com/dvloznov/parity/internal/notionsync"
)

func main() {
	log := logger.New()

	projectID := flag.String("project", os.Getenv("BQ_PROJECT"), "GCP project ID (required)")
	datasetID := flag.String("dataset", envOr("BQ_DATASET", "parity"), "BigQuery dataset ID")
	notionToken := flag.String("notion-token", os.Getenv("NOTION_TOKEN"), "Notion API token (required)")
	notionDBID := flag.String("notion-db-id", os.Getenv("NOTION_DB_ID"), "Notion database ID (required)")
	dryRun := flag.Bool("dry-run", false, "Preview changes without writing to Notion")
	flag.Parse()

	if *projectID == "" {
		log.Fatal().Msg("Error: -project is required (or set BQ_PROJECT)")
	}
	if *notionToken == "" {
		log.Fatal().Msg("Error: -notion-token is required (or set NOTION_TOKEN)")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: -notion-db-id is required (or set NOTION_DB_ID)")
	}

	// Bounded so a wedged sync doesn't hang the CLI.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("project", *projectID).
		Str("dataset", *datasetID).
		Bool("dry_run", *dryRun).
		Msg("Starting Notion sync")

	store, err := infraBQ.NewStore(ctx, *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery store")
	}
	defer store.Close()

	notionClient := notionsync.NewNotionClient(*notionToken)

	if err := notionsync.SyncDealSummaries(ctx, store.Repositories(), notionClient, *notionDBID, *dryRun); err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Println("Sync completed successfully.")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
