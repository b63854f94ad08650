package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/parity/internal/domain"
)

type DealRow struct {
	DealID   string `bigquery:"deal_id"`  // REQUIRED
	Currency string `bigquery:"currency"` // REQUIRED
	Name     string `bigquery:"name"`     // NULLABLE

	CreatedBy string `bigquery:"created_by"` // REQUIRED

	AccrualRevenueCents bigquery.NullInt64 `bigquery:"accrual_revenue_cents"` // NULLABLE
	AccrualPeriodStart  bigquery.NullDate  `bigquery:"accrual_period_start"`  // NULLABLE
	AccrualPeriodEnd    bigquery.NullDate  `bigquery:"accrual_period_end"`    // NULLABLE

	CreatedAt time.Time `bigquery:"created_at"` // REQUIRED
}

func dealRowFromDomain(d *domain.Deal) *DealRow {
	row := &DealRow{
		DealID:    d.ID,
		Currency:  d.Currency,
		Name:      d.Name,
		CreatedBy: d.CreatedBy,
		CreatedAt: d.CreatedAt,
	}
	if d.AccrualRevenueCents != nil {
		row.AccrualRevenueCents = bigquery.NullInt64{Int64: *d.AccrualRevenueCents, Valid: true}
	}
	if d.AccrualPeriodStart != nil {
		row.AccrualPeriodStart = bigquery.NullDate{Date: *d.AccrualPeriodStart, Valid: true}
	}
	if d.AccrualPeriodEnd != nil {
		row.AccrualPeriodEnd = bigquery.NullDate{Date: *d.AccrualPeriodEnd, Valid: true}
	}
	return row
}

func (r *DealRow) toDomain() *domain.Deal {
	d := &domain.Deal{
		ID:        r.DealID,
		Currency:  r.Currency,
		Name:      r.Name,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
	}
	if r.AccrualRevenueCents.Valid {
		v := r.AccrualRevenueCents.Int64
		d.AccrualRevenueCents = &v
	}
	if r.AccrualPeriodStart.Valid {
		v := r.AccrualPeriodStart.Date
		d.AccrualPeriodStart = &v
	}
	if r.AccrualPeriodEnd.Valid {
		v := r.AccrualPeriodEnd.Date
		d.AccrualPeriodEnd = &v
	}
	return d
}

// CreateDeal inserts a single deal row into parity.deals.
func (s *Store) CreateDeal(ctx context.Context, deal *domain.Deal) error {
	if err := s.inserter(dealsTable).Put(ctx, dealRowFromDomain(deal)); err != nil {
		return fmt.Errorf("CreateDeal: inserting row: %w", err)
	}
	return nil
}

// GetDeal retrieves a deal by id.
func (s *Store) GetDeal(ctx context.Context, id string) (*domain.Deal, error) {
	query := fmt.Sprintf(`
		SELECT
			deal_id,
			currency,
			name,
			created_by,
			accrual_revenue_cents,
			accrual_period_start,
			accrual_period_end,
			created_at
		FROM %s
		WHERE deal_id = @deal_id
		LIMIT 1
	`, s.tableRef(dealsTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "deal_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetDeal: reading query: %w", err)
	}

	var row DealRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, domain.NewNotFoundError("deal", id)
	}
	if err != nil {
		return nil, fmt.Errorf("GetDeal: reading row: %w", err)
	}

	return row.toDomain(), nil
}

// ListDeals retrieves deals, optionally filtered by creator, newest first.
func (s *Store) ListDeals(ctx context.Context, createdBy string) ([]*domain.Deal, error) {
	query := fmt.Sprintf(`
		SELECT
			deal_id,
			currency,
			name,
			created_by,
			accrual_revenue_cents,
			accrual_period_start,
			accrual_period_end,
			created_at
		FROM %s
		WHERE @created_by = '' OR created_by = @created_by
		ORDER BY created_at DESC
	`, s.tableRef(dealsTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "created_by", Value: createdBy},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListDeals: reading query: %w", err)
	}

	var deals []*domain.Deal
	for {
		var row DealRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListDeals: iterating: %w", err)
		}
		deals = append(deals, row.toDomain())
	}

	return deals, nil
}
