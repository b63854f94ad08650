// Command migrate applies the BigQuery schema migrations under
// migrations/bigquery to the parity dataset. Applied versions are tracked in
// a schema_migrations table so reruns are idempotent, and checksums of
// applied files are verified so an edited migration is caught before any new
// ones run.
package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

type migrationFile struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

type appliedRow struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

var (
	projectID     = flag.String("project", "", "GCP project ID (required)")
	datasetID     = flag.String("dataset", "parity", "BigQuery dataset ID")
	appliedBy     = flag.String("applied-by", "migrate-cli", "Recorded as applied_by on each migration row")
	migrationsDir = flag.String("migrations", "migrations/bigquery", "Path to the migrations directory")
	dryRun        = flag.Bool("dry-run", false, "List pending migrations without applying them")
)

func main() {
	flag.Parse()

	if *projectID == "" {
		log.Fatal("-project flag is required")
	}

	ctx := context.Background()
	client, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatalf("Failed to create BigQuery client: %v", err)
	}
	defer client.Close()

	log.Printf("Migrating %s.%s", *projectID, *datasetID)

	if err := ensureLedgerTable(ctx, client); err != nil {
		log.Fatalf("Failed to ensure schema_migrations table: %v", err)
	}

	files, err := loadMigrations(*migrationsDir, *projectID, *datasetID)
	if err != nil {
		log.Fatalf("Failed to read migrations: %v", err)
	}

	applied, err := appliedMigrations(ctx, client)
	if err != nil {
		log.Fatalf("Failed to read applied migrations: %v", err)
	}

	if err := verifyChecksums(files, applied); err != nil {
		log.Fatalf("Checksum mismatch: %v", err)
	}

	pending := pendingMigrations(files, applied)
	log.Printf("%d migration files, %d applied, %d pending", len(files), len(applied), len(pending))

	if *dryRun {
		for _, m := range pending {
			log.Printf("  [PENDING] %s", m.Filename)
		}
		return
	}

	for _, m := range pending {
		log.Printf("  [RUN]  %s", m.Filename)
		if err := runStatement(ctx, client.Query(m.SQL)); err != nil {
			log.Fatalf("Failed to apply %s: %v", m.Filename, err)
		}
		if err := recordMigration(ctx, client, m); err != nil {
			log.Fatalf("Failed to record %s: %v", m.Filename, err)
		}
		log.Printf("  [OK]   %s", m.Filename)
	}

	if len(pending) == 0 {
		log.Println("Dataset is up to date.")
	} else {
		log.Printf("Applied %d migration(s)", len(pending))
	}
}

func ensureLedgerTable(ctx context.Context, client *bigquery.Client) error {
	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS `+"`%s.%s.schema_migrations`"+` (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, *projectID, *datasetID)
	return runStatement(ctx, client.Query(sql))
}

// loadMigrations reads every NNNN_name.sql file under dir, sorted by version.
// The checksum covers the file as written, before the project and dataset
// placeholders are substituted, so the same migration applied to two datasets
// records the same checksum.
func loadMigrations(dir, project, dataset string) ([]migrationFile, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		// Allow running from inside cmd/migrate.
		alt := filepath.Join("../..", dir)
		if _, err := os.Stat(alt); os.IsNotExist(err) {
			return nil, fmt.Errorf("migrations directory not found: %s", dir)
		}
		dir = alt
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var files []migrationFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := migrationPattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			log.Printf("Skipping non-migration file: %s", entry.Name())
			continue
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return nil, fmt.Errorf("invalid version in %s: %w", entry.Name(), err)
		}

		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		sql := string(content)
		sql = strings.ReplaceAll(sql, "{{PROJECT_ID}}", project)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", dataset)

		files = append(files, migrationFile{
			Version:  version,
			Name:     matches[2],
			Filename: entry.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

func appliedMigrations(ctx context.Context, client *bigquery.Client) ([]appliedRow, error) {
	sql := fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM `+"`%s.%s.schema_migrations`"+`
		ORDER BY version ASC
	`, *projectID, *datasetID)

	it, err := client.Query(sql).Read(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "Not found") {
			return nil, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []appliedRow
	for {
		var row struct {
			Version   int64
			Name      string
			AppliedAt time.Time
			Checksum  bigquery.NullString
			AppliedBy bigquery.NullString
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}
		applied = append(applied, appliedRow{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return applied, nil
}

// verifyChecksums rejects a run when an already applied migration file no
// longer matches the checksum recorded at apply time. Rows recorded without a
// checksum are skipped.
func verifyChecksums(files []migrationFile, applied []appliedRow) error {
	byVersion := make(map[int]migrationFile, len(files))
	for _, f := range files {
		byVersion[f.Version] = f
	}
	for _, row := range applied {
		if row.Checksum == "" {
			continue
		}
		f, ok := byVersion[row.Version]
		if !ok {
			return fmt.Errorf("applied migration %04d_%s has no file on disk", row.Version, row.Name)
		}
		if f.Checksum != row.Checksum {
			return fmt.Errorf("%s changed after being applied (recorded %s, file %s)",
				f.Filename, row.Checksum[:12], f.Checksum[:12])
		}
	}
	return nil
}

func pendingMigrations(files []migrationFile, applied []appliedRow) []migrationFile {
	appliedVersions := make(map[int]bool, len(applied))
	for _, row := range applied {
		appliedVersions[row.Version] = true
	}
	var pending []migrationFile
	for _, f := range files {
		if !appliedVersions[f.Version] {
			pending = append(pending, f)
		}
	}
	return pending
}

func recordMigration(ctx context.Context, client *bigquery.Client, m migrationFile) error {
	sql := fmt.Sprintf(`
		INSERT INTO `+"`%s.%s.schema_migrations`"+`
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, *projectID, *datasetID)

	q := client.Query(sql)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: m.Version},
		{Name: "name", Value: m.Name},
		{Name: "checksum", Value: m.Checksum},
		{Name: "applied_by", Value: *appliedBy},
	}
	return runStatement(ctx, q)
}

func runStatement(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
