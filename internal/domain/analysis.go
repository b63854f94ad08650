package domain

import "time"

// ReconciliationStatus is the outcome of comparing accrual revenue against
// bank-observed operational inflow.
type ReconciliationStatus string

const (
	// ReconciliationNotRun: accrual figures absent, zero, or no transactions.
	ReconciliationNotRun ReconciliationStatus = "NOT_RUN"
	// ReconciliationFailedOverlap: too few transaction dates fall inside the
	// accrual period to support a comparison.
	ReconciliationFailedOverlap ReconciliationStatus = "FAILED_OVERLAP"
	// ReconciliationPassed: variance within the configured tolerance.
	ReconciliationPassed ReconciliationStatus = "PASSED"
	// ReconciliationFailedVariance: variance above the configured tolerance.
	ReconciliationFailedVariance ReconciliationStatus = "FAILED_VARIANCE"
)

// Tier is the categorical quality bucket derived from final confidence.
type Tier string

const (
	TierHigh   Tier = "High"
	TierMedium Tier = "Medium"
	TierLow    Tier = "Low"
)

// AnalysisRun captures the full metric set of one pipeline execution over a
// deal. One run is current per deal; prior runs are retained for audit and
// never mutated.
type AnalysisRun struct {
	ID     string `json:"id"`
	DealID string `json:"deal_id"`

	SchemaVersion string `json:"schema_version"`
	ConfigVersion string `json:"config_version"`

	// RunTrigger records what produced the run: "export" or "override".
	RunTrigger string `json:"run_trigger"`

	// Volume totals in cents. Transfers are excluded.
	NonTransferAbsTotalCents int64 `json:"non_transfer_abs_total_cents"`
	ClassifiedAbsTotalCents  int64 `json:"classified_abs_total_cents"`

	// CoveragePctBP = mapped transaction count / total count, in basis
	// points, floored. 10000 iff every transaction maps to a named entity.
	CoveragePctBP int64 `json:"coverage_pct_bp"`

	OverlapBP                 int64                `json:"overlap_bp"`
	ReconciliationStatus      ReconciliationStatus `json:"reconciliation_status"`
	ReconciliationPctBP       *int64               `json:"reconciliation_pct_bp,omitempty"`
	BankOperationalInflowCents int64               `json:"bank_operational_inflow_cents"`

	MissingMonthCount      int   `json:"missing_month_count"`
	MissingMonthPenaltyBP  int64 `json:"missing_month_penalty_bp"`
	OverridePenaltyBP      int64 `json:"override_penalty_bp"`

	BaseConfidenceBP  int64 `json:"base_confidence_bp"`
	FinalConfidenceBP int64 `json:"final_confidence_bp"`
	Tier              Tier  `json:"tier"`
	TierCapped        bool  `json:"tier_capped"`

	// Component content hashes for cheap drift detection.
	RawTransactionHash string `json:"raw_transaction_hash"`
	EntitiesHash       string `json:"entities_hash"`
	TransferLinksHash  string `json:"transfer_links_hash"`
	OverridesHash      string `json:"overrides_hash"`

	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the immutable, content-addressed export of a deal's analysis
// state. Write-once: two exports of identical state share one snapshot row.
type Snapshot struct {
	ID            string `json:"id"`
	DealID        string `json:"deal_id"`
	AnalysisRunID string `json:"analysis_run_id"`

	SchemaVersion string `json:"schema_version"`
	ConfigVersion string `json:"config_version"`

	// SHA256Hash covers the full canonical payload, free text included.
	SHA256Hash string `json:"sha256_hash"`
	// FinancialStateHash covers only the monetary facts (entity totals,
	// roles, run metrics); consumers use it to detect "did the numbers
	// change" without diffing the export.
	FinancialStateHash string `json:"financial_state_hash"`

	CanonicalJSON string `json:"-"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}
