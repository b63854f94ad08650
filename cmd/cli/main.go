package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/parity/internal/analysis"
	"github.com/dvloznov/parity/internal/domain"
	"github.com/dvloznov/parity/internal/gcsuploader"
	infraBQ "github.com/dvloznov/parity/internal/infra/bigquery"
	"github.com/dvloznov/parity/internal/logger"
	"github.com/dvloznov/parity/internal/parsing"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "analyze":
		runAnalyze(log)
	case "upload":
		runUpload(log)
	case "inspect":
		runInspect(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Parity CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  analyze   Run the full analysis over local CSV statements, in memory")
	fmt.Println("  upload    Upload a statement file to GCS")
	fmt.Println("  inspect   Inspect a stored snapshot by ID")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// runAnalyze is the offline path: parse one or more local CSV statements,
// run the pipeline and print the resulting metrics. No BigQuery, no queue.
func runAnalyze(log zerolog.Logger) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	currency := fs.String("currency", "GBP", "Deal currency (ISO 4217)")
	revenue := fs.Int64("accrual-revenue-cents", 0, "Self-reported accrual revenue in cents (0 disables reconciliation)")
	periodStart := fs.String("period-start", "", "Accrual period start (YYYY-MM-DD)")
	periodEnd := fs.String("period-end", "", "Accrual period end (YYYY-MM-DD)")
	payloadOut := fs.String("payload-out", "", "Write the canonical snapshot JSON to this file")
	fs.Parse(os.Args[2:])

	files := fs.Args()
	if len(files) == 0 {
		log.Fatal().Msg("Usage: cli analyze [options] statement.csv [statement2.csv ...]")
	}

	deal := &domain.Deal{
		ID:        "local",
		Currency:  strings.ToUpper(*currency),
		CreatedBy: "cli",
		CreatedAt: time.Now().UTC(),
	}
	if *revenue > 0 {
		if *periodStart == "" || *periodEnd == "" {
			log.Fatal().Msg("Error: -period-start and -period-end are required with -accrual-revenue-cents")
		}
		start, err := civil.ParseDate(*periodStart)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -period-start")
		}
		end, err := civil.ParseDate(*periodEnd)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -period-end")
		}
		deal.AccrualRevenueCents = revenue
		deal.AccrualPeriodStart = &start
		deal.AccrualPeriodEnd = &end
	}

	var txns []*domain.Transaction
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("Failed to read statement")
		}
		rows, detected, err := parsing.ParseCSV(data, filepath.Base(path), deal.Currency)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("Failed to parse statement")
		}
		for _, row := range rows {
			row.DealID = deal.ID
		}
		log.Info().Str("file", path).Int("rows", len(rows)).Str("currency_detected", detected).Msg("Statement parsed")
		txns = append(txns, rows...)
	}

	res := analysis.Run(deal.ID, txns, nil, analysis.Accrual{
		RevenueCents: deal.AccrualRevenueCents,
		PeriodStart:  deal.AccrualPeriodStart,
		PeriodEnd:    deal.AccrualPeriodEnd,
	}, "export", analysis.DefaultConfig())

	snap, err := analysis.BuildSnapshot(analysis.BuildInput{
		Deal:         deal,
		Run:          res.Run,
		Transactions: res.Transactions,
		Links:        res.Links,
		Entities:     res.Entities,
		Mappings:     res.Mappings,
		Breakdown:    res.Breakdown,
		CreatedBy:    "cli",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build snapshot")
	}

	run := res.Run
	fmt.Println("\n=== Analysis ===")
	fmt.Printf("Transactions:       %d (%d transfer legs)\n", len(res.Transactions), 2*len(res.Links))
	fmt.Printf("Entities:           %d\n", len(res.Entities))
	fmt.Printf("Coverage:           %s\n", formatBP(run.CoveragePctBP))
	fmt.Printf("Overlap:            %s\n", formatBP(run.OverlapBP))
	fmt.Printf("Reconciliation:     %s\n", run.ReconciliationStatus)
	if run.ReconciliationPctBP != nil {
		fmt.Printf("Reconciliation pct: %s\n", formatBP(*run.ReconciliationPctBP))
	}
	fmt.Printf("Confidence:         %s (base %s)\n", formatBP(run.FinalConfidenceBP), formatBP(run.BaseConfidenceBP))
	fmt.Printf("Tier:               %s", run.Tier)
	if run.TierCapped {
		fmt.Printf(" (capped)")
	}
	fmt.Println()

	fmt.Println("\n=== Entity breakdown ===")
	for _, bd := range res.Breakdown {
		fmt.Printf("%-40s %-24s %12d cents  %s\n", bd.DisplayName, bd.Role, bd.TotalCents, formatBP(bd.PercentBP))
	}

	fmt.Println("\n=== Snapshot ===")
	fmt.Printf("sha256_hash:          %s\n", snap.SHA256Hash)
	fmt.Printf("financial_state_hash: %s\n", snap.FinancialStateHash)

	if *payloadOut != "" {
		if err := os.WriteFile(*payloadOut, []byte(snap.CanonicalJSON), 0o644); err != nil {
			log.Fatal().Err(err).Msg("Failed to write payload")
		}
		fmt.Printf("payload written to:   %s\n", *payloadOut)
	}
}

func formatBP(bp int64) string {
	return fmt.Sprintf("%d.%02d%%", bp/100, bp%100)
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", "", "GCS bucket name")
	objectName := fs.String("object", "", "GCS object name (defaults to filename)")
	filePath := fs.String("file", "", "Path to local statement file")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH")
	}

	if *objectName == "" {
		*objectName = filepath.Base(*filePath)
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading file to GCS")

	if err := gcsuploader.UploadFile(ctx, *bucketName, *objectName, *filePath); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to gs://%s/%s\n", *filePath, *bucketName, *objectName)
}

func runInspect(log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	project := fs.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project id")
	dataset := fs.String("dataset", envOr("BQ_DATASET", "parity"), "BigQuery dataset id")
	snapshotID := fs.String("snapshot-id", "", "Snapshot ID to inspect")
	showPayload := fs.Bool("payload", false, "Print the canonical JSON payload")
	fs.Parse(os.Args[2:])

	if *project == "" || *snapshotID == "" {
		log.Fatal().Msg("Usage: cli inspect -project PROJECT -snapshot-id ID")
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	store, err := infraBQ.NewStore(ctx, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery store")
	}
	defer store.Close()

	snap, err := store.GetSnapshot(ctx, *snapshotID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load snapshot")
	}

	fmt.Println("\n=== Snapshot Details ===")
	fmt.Printf("ID:                   %s\n", snap.ID)
	fmt.Printf("Deal:                 %s\n", snap.DealID)
	fmt.Printf("Run:                  %s\n", snap.AnalysisRunID)
	fmt.Printf("Schema/config:        %s / %s\n", snap.SchemaVersion, snap.ConfigVersion)
	fmt.Printf("sha256_hash:          %s\n", snap.SHA256Hash)
	fmt.Printf("financial_state_hash: %s\n", snap.FinancialStateHash)
	fmt.Printf("Created:              %s by %s\n", snap.CreatedAt.Format(time.RFC3339), snap.CreatedBy)

	if *showPayload {
		fmt.Println()
		fmt.Println(snap.CanonicalJSON)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
