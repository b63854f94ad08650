package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/parity/internal/domain"
)

type EntityRow struct {
	EntityID       string `bigquery:"entity_id"` // REQUIRED, sha256(deal|name)
	DealID         string `bigquery:"deal_id"`   // REQUIRED
	NormalizedName string `bigquery:"normalized_name"`
	DisplayName    string `bigquery:"display_name"`
	Role           string `bigquery:"role"`

	CreatedAt time.Time `bigquery:"created_at"`
}

func entityRowFromDomain(e *domain.Entity) *EntityRow {
	return &EntityRow{
		EntityID:       e.ID,
		DealID:         e.DealID,
		NormalizedName: e.NormalizedName,
		DisplayName:    e.DisplayName,
		Role:           string(e.Role),
		CreatedAt:      e.CreatedAt,
	}
}

func (r *EntityRow) toDomain() *domain.Entity {
	return &domain.Entity{
		ID:             r.EntityID,
		DealID:         r.DealID,
		NormalizedName: r.NormalizedName,
		DisplayName:    r.DisplayName,
		Role:           domain.Role(r.Role),
		CreatedAt:      r.CreatedAt,
	}
}

// UpsertEntities rewrites the given entities. Entity ids are deterministic
// content hashes, so delete-then-insert converges on the same rows and a
// re-run is idempotent.
func (s *Store) UpsertEntities(ctx context.Context, entities []*domain.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}

	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE entity_id IN UNNEST(@entity_ids)
	`, s.tableRef(entitiesTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "entity_ids", Value: ids},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("UpsertEntities: running delete: %w", err)
	}
	jobStatus, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("UpsertEntities: waiting for delete: %w", err)
	}
	if err := jobStatus.Err(); err != nil {
		return fmt.Errorf("UpsertEntities: delete failed: %w", err)
	}

	rows := make([]*EntityRow, len(entities))
	for i, e := range entities {
		rows[i] = entityRowFromDomain(e)
	}
	if err := s.inserter(entitiesTable).Put(ctx, rows); err != nil {
		return fmt.Errorf("UpsertEntities: inserting rows: %w", err)
	}

	return nil
}

// ListEntitiesByDeal retrieves a deal's entities ordered by id.
func (s *Store) ListEntitiesByDeal(ctx context.Context, dealID string) ([]*domain.Entity, error) {
	query := fmt.Sprintf(`
		SELECT
			entity_id,
			deal_id,
			normalized_name,
			display_name,
			role,
			created_at
		FROM %s
		WHERE deal_id = @deal_id
		ORDER BY entity_id
	`, s.tableRef(entitiesTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "deal_id", Value: dealID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListEntitiesByDeal: reading query: %w", err)
	}

	var entities []*domain.Entity
	for {
		var row EntityRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListEntitiesByDeal: iterating: %w", err)
		}
		entities = append(entities, row.toDomain())
	}

	return entities, nil
}
