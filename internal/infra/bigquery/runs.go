package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/parity/internal/domain"
)

type RunRow struct {
	RunID  string `bigquery:"run_id"`  // REQUIRED
	DealID string `bigquery:"deal_id"` // REQUIRED

	SchemaVersion string `bigquery:"schema_version"`
	ConfigVersion string `bigquery:"config_version"`
	RunTrigger    string `bigquery:"run_trigger"`

	NonTransferAbsTotalCents int64 `bigquery:"non_transfer_abs_total_cents"`
	ClassifiedAbsTotalCents  int64 `bigquery:"classified_abs_total_cents"`
	CoveragePctBP            int64 `bigquery:"coverage_pct_bp"`

	OverlapBP                  int64              `bigquery:"overlap_bp"`
	ReconciliationStatus       string             `bigquery:"reconciliation_status"`
	ReconciliationPctBP        bigquery.NullInt64 `bigquery:"reconciliation_pct_bp"` // NULLABLE
	BankOperationalInflowCents int64              `bigquery:"bank_operational_inflow_cents"`

	MissingMonthCount     int64 `bigquery:"missing_month_count"`
	MissingMonthPenaltyBP int64 `bigquery:"missing_month_penalty_bp"`
	OverridePenaltyBP     int64 `bigquery:"override_penalty_bp"`

	BaseConfidenceBP  int64  `bigquery:"base_confidence_bp"`
	FinalConfidenceBP int64  `bigquery:"final_confidence_bp"`
	Tier              string `bigquery:"tier"`
	TierCapped        bool   `bigquery:"tier_capped"`

	RawTransactionHash string `bigquery:"raw_transaction_hash"`
	EntitiesHash       string `bigquery:"entities_hash"`
	TransferLinksHash  string `bigquery:"transfer_links_hash"`
	OverridesHash      string `bigquery:"overrides_hash"`

	CreatedAt time.Time `bigquery:"created_at"` // REQUIRED
}

func runRowFromDomain(r *domain.AnalysisRun) *RunRow {
	row := &RunRow{
		RunID:                      r.ID,
		DealID:                     r.DealID,
		SchemaVersion:              r.SchemaVersion,
		ConfigVersion:              r.ConfigVersion,
		RunTrigger:                 r.RunTrigger,
		NonTransferAbsTotalCents:   r.NonTransferAbsTotalCents,
		ClassifiedAbsTotalCents:    r.ClassifiedAbsTotalCents,
		CoveragePctBP:              r.CoveragePctBP,
		OverlapBP:                  r.OverlapBP,
		ReconciliationStatus:       string(r.ReconciliationStatus),
		BankOperationalInflowCents: r.BankOperationalInflowCents,
		MissingMonthCount:          int64(r.MissingMonthCount),
		MissingMonthPenaltyBP:      r.MissingMonthPenaltyBP,
		OverridePenaltyBP:          r.OverridePenaltyBP,
		BaseConfidenceBP:           r.BaseConfidenceBP,
		FinalConfidenceBP:          r.FinalConfidenceBP,
		Tier:                       string(r.Tier),
		TierCapped:                 r.TierCapped,
		RawTransactionHash:         r.RawTransactionHash,
		EntitiesHash:               r.EntitiesHash,
		TransferLinksHash:          r.TransferLinksHash,
		OverridesHash:              r.OverridesHash,
		CreatedAt:                  r.CreatedAt,
	}
	if r.ReconciliationPctBP != nil {
		row.ReconciliationPctBP = bigquery.NullInt64{Int64: *r.ReconciliationPctBP, Valid: true}
	}
	return row
}

func (r *RunRow) toDomain() *domain.AnalysisRun {
	run := &domain.AnalysisRun{
		ID:                         r.RunID,
		DealID:                     r.DealID,
		SchemaVersion:              r.SchemaVersion,
		ConfigVersion:              r.ConfigVersion,
		RunTrigger:                 r.RunTrigger,
		NonTransferAbsTotalCents:   r.NonTransferAbsTotalCents,
		ClassifiedAbsTotalCents:    r.ClassifiedAbsTotalCents,
		CoveragePctBP:              r.CoveragePctBP,
		OverlapBP:                  r.OverlapBP,
		ReconciliationStatus:       domain.ReconciliationStatus(r.ReconciliationStatus),
		BankOperationalInflowCents: r.BankOperationalInflowCents,
		MissingMonthCount:          int(r.MissingMonthCount),
		MissingMonthPenaltyBP:      r.MissingMonthPenaltyBP,
		OverridePenaltyBP:          r.OverridePenaltyBP,
		BaseConfidenceBP:           r.BaseConfidenceBP,
		FinalConfidenceBP:          r.FinalConfidenceBP,
		Tier:                       domain.Tier(r.Tier),
		TierCapped:                 r.TierCapped,
		RawTransactionHash:         r.RawTransactionHash,
		EntitiesHash:               r.EntitiesHash,
		TransferLinksHash:          r.TransferLinksHash,
		OverridesHash:              r.OverridesHash,
		CreatedAt:                  r.CreatedAt,
	}
	if r.ReconciliationPctBP.Valid {
		v := r.ReconciliationPctBP.Int64
		run.ReconciliationPctBP = &v
	}
	return run
}

const runColumns = `
			run_id,
			deal_id,
			schema_version,
			config_version,
			run_trigger,
			non_transfer_abs_total_cents,
			classified_abs_total_cents,
			coverage_pct_bp,
			overlap_bp,
			reconciliation_status,
			reconciliation_pct_bp,
			bank_operational_inflow_cents,
			missing_month_count,
			missing_month_penalty_bp,
			override_penalty_bp,
			base_confidence_bp,
			final_confidence_bp,
			tier,
			tier_capped,
			raw_transaction_hash,
			entities_hash,
			transfer_links_hash,
			overrides_hash,
			created_at`

// InsertRun appends one analysis run. Runs are never mutated.
func (s *Store) InsertRun(ctx context.Context, run *domain.AnalysisRun) error {
	if err := s.inserter(runsTable).Put(ctx, runRowFromDomain(run)); err != nil {
		return fmt.Errorf("InsertRun: inserting row: %w", err)
	}
	return nil
}

// LatestRun retrieves the deal's most recent analysis run.
func (s *Store) LatestRun(ctx context.Context, dealID string) (*domain.AnalysisRun, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE deal_id = @deal_id
		ORDER BY created_at DESC, run_id DESC
		LIMIT 1
	`, runColumns, s.tableRef(runsTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "deal_id", Value: dealID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("LatestRun: reading query: %w", err)
	}

	var row RunRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, domain.NewNotFoundError("analysis run for deal", dealID)
	}
	if err != nil {
		return nil, fmt.Errorf("LatestRun: reading row: %w", err)
	}

	return row.toDomain(), nil
}

// ListRunsByDeal retrieves every analysis run for a deal, newest first.
func (s *Store) ListRunsByDeal(ctx context.Context, dealID string) ([]*domain.AnalysisRun, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE deal_id = @deal_id
		ORDER BY created_at DESC, run_id DESC
	`, runColumns, s.tableRef(runsTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "deal_id", Value: dealID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRunsByDeal: reading query: %w", err)
	}

	var runs []*domain.AnalysisRun
	for {
		var row RunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRunsByDeal: iterating: %w", err)
		}
		runs = append(runs, row.toDomain())
	}

	return runs, nil
}
