package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/parity/internal/domain"
)

type MappingRow struct {
	DealID   string `bigquery:"deal_id"`   // REQUIRED
	TxnID    string `bigquery:"txn_id"`    // REQUIRED
	EntityID string `bigquery:"entity_id"` // REQUIRED
	Role     string `bigquery:"role"`      // REQUIRED
}

// ReplaceMappings rewrites the deal's full transaction -> entity relation.
// Each pipeline run replaces the whole set, which keeps re-mapping
// idempotent per transaction.
func (s *Store) ReplaceMappings(ctx context.Context, dealID string, mappings []*domain.TxnEntityMapping) error {
	if err := s.deleteByDeal(ctx, mappingsTable, dealID, "ReplaceMappings"); err != nil {
		return err
	}
	if len(mappings) == 0 {
		return nil
	}

	rows := make([]*MappingRow, len(mappings))
	for i, m := range mappings {
		rows[i] = &MappingRow{
			DealID:   dealID,
			TxnID:    m.TxnID,
			EntityID: m.EntityID,
			Role:     string(m.Role),
		}
	}
	if err := s.inserter(mappingsTable).Put(ctx, rows); err != nil {
		return fmt.Errorf("ReplaceMappings: inserting rows: %w", err)
	}

	return nil
}

// ListMappingsByDeal retrieves the deal's mappings ordered by txn id.
func (s *Store) ListMappingsByDeal(ctx context.Context, dealID string) ([]*domain.TxnEntityMapping, error) {
	query := fmt.Sprintf(`
		SELECT
			deal_id,
			txn_id,
			entity_id,
			role
		FROM %s
		WHERE deal_id = @deal_id
		ORDER BY txn_id
	`, s.tableRef(mappingsTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "deal_id", Value: dealID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListMappingsByDeal: reading query: %w", err)
	}

	var mappings []*domain.TxnEntityMapping
	for {
		var row MappingRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListMappingsByDeal: iterating: %w", err)
		}
		mappings = append(mappings, &domain.TxnEntityMapping{
			DealID:   row.DealID,
			TxnID:    row.TxnID,
			EntityID: row.EntityID,
			Role:     domain.Role(row.Role),
		})
	}

	return mappings, nil
}

// deleteByDeal removes every row for a deal from the given table.
func (s *Store) deleteByDeal(ctx context.Context, table, dealID, op string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE deal_id = @deal_id
	`, s.tableRef(table))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "deal_id", Value: dealID},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: running delete: %w", op, err)
	}
	jobStatus, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s: waiting for delete: %w", op, err)
	}
	if err := jobStatus.Err(); err != nil {
		return fmt.Errorf("%s: delete failed: %w", op, err)
	}

	return nil
}
