package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/parity/internal/domain"
)

type SnapshotRow struct {
	SnapshotID    string `bigquery:"snapshot_id"` // REQUIRED
	DealID        string `bigquery:"deal_id"`     // REQUIRED
	AnalysisRunID string `bigquery:"analysis_run_id"`

	SchemaVersion string `bigquery:"schema_version"`
	ConfigVersion string `bigquery:"config_version"`

	SHA256Hash         string `bigquery:"sha256_hash"`          // REQUIRED
	FinancialStateHash string `bigquery:"financial_state_hash"` // REQUIRED

	CanonicalJSON string `bigquery:"canonical_json"` // REQUIRED

	CreatedBy string    `bigquery:"created_by"`
	CreatedAt time.Time `bigquery:"created_at"` // REQUIRED
}

func snapshotRowFromDomain(snap *domain.Snapshot) *SnapshotRow {
	return &SnapshotRow{
		SnapshotID:         snap.ID,
		DealID:             snap.DealID,
		AnalysisRunID:      snap.AnalysisRunID,
		SchemaVersion:      snap.SchemaVersion,
		ConfigVersion:      snap.ConfigVersion,
		SHA256Hash:         snap.SHA256Hash,
		FinancialStateHash: snap.FinancialStateHash,
		CanonicalJSON:      snap.CanonicalJSON,
		CreatedBy:          snap.CreatedBy,
		CreatedAt:          snap.CreatedAt,
	}
}

func (r *SnapshotRow) toDomain() *domain.Snapshot {
	return &domain.Snapshot{
		ID:                 r.SnapshotID,
		DealID:             r.DealID,
		AnalysisRunID:      r.AnalysisRunID,
		SchemaVersion:      r.SchemaVersion,
		ConfigVersion:      r.ConfigVersion,
		SHA256Hash:         r.SHA256Hash,
		FinancialStateHash: r.FinancialStateHash,
		CanonicalJSON:      r.CanonicalJSON,
		CreatedBy:          r.CreatedBy,
		CreatedAt:          r.CreatedAt,
	}
}

const snapshotColumns = `
			snapshot_id,
			deal_id,
			analysis_run_id,
			schema_version,
			config_version,
			sha256_hash,
			financial_state_hash,
			canonical_json,
			created_by,
			created_at`

// InsertSnapshot appends one snapshot. Snapshots are write-once.
func (s *Store) InsertSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	if err := s.inserter(snapshotsTable).Put(ctx, snapshotRowFromDomain(snap)); err != nil {
		return fmt.Errorf("InsertSnapshot: inserting row: %w", err)
	}
	return nil
}

// GetSnapshot retrieves a snapshot by id, payload included.
func (s *Store) GetSnapshot(ctx context.Context, id string) (*domain.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE snapshot_id = @snapshot_id
		LIMIT 1
	`, snapshotColumns, s.tableRef(snapshotsTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "snapshot_id", Value: id},
	}

	return s.readSnapshot(ctx, q, "GetSnapshot", "snapshot", id)
}

// GetSnapshotByHash retrieves the deal's snapshot with the given full
// content hash. Export dedupe path.
func (s *Store) GetSnapshotByHash(ctx context.Context, dealID, sha256Hash string) (*domain.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE deal_id = @deal_id
		  AND sha256_hash = @sha256_hash
		ORDER BY created_at
		LIMIT 1
	`, snapshotColumns, s.tableRef(snapshotsTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "deal_id", Value: dealID},
		{Name: "sha256_hash", Value: sha256Hash},
	}

	return s.readSnapshot(ctx, q, "GetSnapshotByHash", "snapshot with hash", sha256Hash)
}

func (s *Store) readSnapshot(ctx context.Context, q *bigquery.Query, op, resource, id string) (*domain.Snapshot, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: reading query: %w", op, err)
	}

	var row SnapshotRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, domain.NewNotFoundError(resource, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: reading row: %w", op, err)
	}

	return row.toDomain(), nil
}

// ListSnapshotsByDeal retrieves a deal's snapshots, newest first, without
// the canonical payload.
func (s *Store) ListSnapshotsByDeal(ctx context.Context, dealID string) ([]*domain.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT
			snapshot_id,
			deal_id,
			analysis_run_id,
			schema_version,
			config_version,
			sha256_hash,
			financial_state_hash,
			'' AS canonical_json,
			created_by,
			created_at
		FROM %s
		WHERE deal_id = @deal_id
		ORDER BY created_at DESC, snapshot_id
	`, s.tableRef(snapshotsTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "deal_id", Value: dealID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListSnapshotsByDeal: reading query: %w", err)
	}

	var snaps []*domain.Snapshot
	for {
		var row SnapshotRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListSnapshotsByDeal: iterating: %w", err)
		}
		snaps = append(snaps, row.toDomain())
	}

	return snaps, nil
}
