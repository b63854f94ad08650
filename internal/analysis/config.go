package analysis

// Version constants stamped into every analysis run and snapshot payload.
// Bump SchemaVersion when the canonical payload shape changes, ConfigVersion
// when any policy threshold below changes; either invalidates stored hashes.
const (
	SchemaVersion = "1.0.0"
	ConfigVersion = "1.0.0"

	// RoleRuleVersion tags mappings produced by the keyword classifier.
	RoleRuleVersion = "v1_rules"
	// TransferRuleVersion tags transfer links produced by the matcher.
	TransferRuleVersion = "v1_transfer_rule"
)

// Config carries every policy threshold the pipeline uses. Thresholds encode
// policy that changes independently of the algorithm shape, so none of them
// appear as literals in the engine code.
type Config struct {
	// OverlapGateBP is the minimum fraction (basis points) of transaction
	// dates that must fall inside the accrual period before reconciliation
	// is attempted. Below it the comparison has no basis and the run is
	// FAILED_OVERLAP.
	OverlapGateBP int64

	// VarianceToleranceBP is the maximum accrual-vs-inflow variance (basis
	// points of accrual revenue) that still reconciles as PASSED.
	VarianceToleranceBP int64

	// Tier cut points over final confidence.
	TierHighBP   int64
	TierMediumBP int64

	// MissingMonthPenaltyBP is charged per interior calendar month with no
	// transactions, up to MissingMonthPenaltyCapBP.
	MissingMonthPenaltyBP    int64
	MissingMonthPenaltyCapBP int64

	// OverridePenaltyCapBP bounds the total confidence penalty from manual
	// reclassifications.
	OverridePenaltyCapBP int64

	// TransferMaxDayGap is the largest date distance (calendar days) between
	// the two legs of a matched transfer.
	TransferMaxDayGap int
}

// DefaultConfig returns the production policy values.
func DefaultConfig() Config {
	return Config{
		OverlapGateBP:            6000,
		VarianceToleranceBP:      1000,
		TierHighBP:               8500,
		TierMediumBP:             7000,
		MissingMonthPenaltyBP:    1000,
		MissingMonthPenaltyCapBP: 5000,
		OverridePenaltyCapBP:     7000,
		TransferMaxDayGap:        2,
	}
}
