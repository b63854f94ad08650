package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/parity/internal/domain"
)

type OverrideRow struct {
	OverrideID string `bigquery:"override_id"` // REQUIRED
	DealID     string `bigquery:"deal_id"`     // REQUIRED
	EntityID   string `bigquery:"entity_id"`   // REQUIRED

	OldRole  string `bigquery:"old_role"`
	NewRole  string `bigquery:"new_role"` // REQUIRED
	WeightBP int64  `bigquery:"weight_bp"`

	Note      string    `bigquery:"note"` // NULLABLE
	CreatedBy string    `bigquery:"created_by"`
	CreatedAt time.Time `bigquery:"created_at"` // REQUIRED
}

// InsertOverride appends one override to the audit log. Overrides are
// never updated or deleted.
func (s *Store) InsertOverride(ctx context.Context, ov *domain.Override) error {
	row := &OverrideRow{
		OverrideID: ov.ID,
		DealID:     ov.DealID,
		EntityID:   ov.EntityID,
		OldRole:    string(ov.OldRole),
		NewRole:    string(ov.NewRole),
		WeightBP:   ov.WeightBP,
		Note:       ov.Note,
		CreatedBy:  ov.CreatedBy,
		CreatedAt:  ov.CreatedAt,
	}
	if err := s.inserter(overridesTable).Put(ctx, row); err != nil {
		return fmt.Errorf("InsertOverride: inserting row: %w", err)
	}
	return nil
}

// ListOverridesByDeal retrieves a deal's override log, oldest first.
func (s *Store) ListOverridesByDeal(ctx context.Context, dealID string) ([]*domain.Override, error) {
	query := fmt.Sprintf(`
		SELECT
			override_id,
			deal_id,
			entity_id,
			old_role,
			new_role,
			weight_bp,
			note,
			created_by,
			created_at
		FROM %s
		WHERE deal_id = @deal_id
		ORDER BY created_at, override_id
	`, s.tableRef(overridesTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "deal_id", Value: dealID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListOverridesByDeal: reading query: %w", err)
	}

	var overrides []*domain.Override
	for {
		var row OverrideRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListOverridesByDeal: iterating: %w", err)
		}
		overrides = append(overrides, &domain.Override{
			ID:        row.OverrideID,
			DealID:    row.DealID,
			EntityID:  row.EntityID,
			OldRole:   domain.Role(row.OldRole),
			NewRole:   domain.Role(row.NewRole),
			WeightBP:  row.WeightBP,
			Note:      row.Note,
			CreatedBy: row.CreatedBy,
			CreatedAt: row.CreatedAt,
		})
	}

	return overrides, nil
}
