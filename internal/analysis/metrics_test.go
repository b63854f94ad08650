package analysis

import (
	"testing"

	"github.com/dvloznov/parity/internal/domain"
)

func classifiedTxn(t *testing.T, fp, date string, cents int64, entityID string, role domain.Role) ClassifiedTxn {
	t.Helper()
	return ClassifiedTxn{
		Txn: &domain.Transaction{
			Fingerprint:       fp,
			TxnDate:           mustDate(t, date),
			SignedAmountCents: cents,
		},
		EntityID: entityID,
		Role:     role,
	}
}

func accrualFor(t *testing.T, revenueCents int64, start, end string) Accrual {
	t.Helper()
	s := mustDate(t, start)
	e := mustDate(t, end)
	return Accrual{RevenueCents: &revenueCents, PeriodStart: &s, PeriodEnd: &e}
}

func TestComputeMetricsEmptyInput(t *testing.T) {
	m := ComputeMetrics(nil, "uncl", Accrual{}, DefaultConfig())
	if m.ReconciliationStatus != domain.ReconciliationNotRun {
		t.Errorf("status = %s, want NOT_RUN", m.ReconciliationStatus)
	}
	if m.BaseConfidenceBP != 0 || m.CoveragePctBP != 0 {
		t.Errorf("empty input must score zero, got base=%d coverage=%d", m.BaseConfidenceBP, m.CoveragePctBP)
	}
}

func TestComputeMetricsCoverage(t *testing.T) {
	txns := []ClassifiedTxn{
		classifiedTxn(t, "fp1", "2025-01-05", 10000, "ent-a", domain.RoleRevenueOperational),
		classifiedTxn(t, "fp2", "2025-01-06", -5000, "ent-b", domain.RoleSupplier),
		classifiedTxn(t, "fp3", "2025-01-07", 100, "uncl", domain.RoleOther),
	}

	m := ComputeMetrics(txns, "uncl", Accrual{}, DefaultConfig())

	// 2 of 3 mapped to named entities, floored to bp.
	if m.CoveragePctBP != 6666 {
		t.Errorf("coverage = %d, want 6666", m.CoveragePctBP)
	}
	if m.NonTransferAbsTotalCents != 15100 {
		t.Errorf("non-transfer total = %d, want 15100", m.NonTransferAbsTotalCents)
	}
	// RoleOther rows do not count as classified volume.
	if m.ClassifiedAbsTotalCents != 15000 {
		t.Errorf("classified total = %d, want 15000", m.ClassifiedAbsTotalCents)
	}
	if m.ReconciliationStatus != domain.ReconciliationNotRun {
		t.Errorf("status = %s, want NOT_RUN without accrual", m.ReconciliationStatus)
	}
	// Operational inflow is still reported even though reconciliation
	// cannot run.
	if m.BankOperationalInflowCents != 10000 {
		t.Errorf("inflow = %d, want 10000", m.BankOperationalInflowCents)
	}
}

func TestComputeMetricsTransfersExcludedFromTotals(t *testing.T) {
	leg := classifiedTxn(t, "fp1", "2025-01-05", -50000, "ent-a", domain.RoleOther)
	leg.Txn.IsTransfer = true
	txns := []ClassifiedTxn{
		leg,
		classifiedTxn(t, "fp2", "2025-01-06", 10000, "ent-b", domain.RoleRevenueOperational),
	}

	m := ComputeMetrics(txns, "uncl", Accrual{}, DefaultConfig())

	if m.NonTransferAbsTotalCents != 10000 {
		t.Errorf("non-transfer total = %d, want 10000 (transfer leg excluded)", m.NonTransferAbsTotalCents)
	}
	// Transfer legs still count toward coverage.
	if m.CoveragePctBP != 10000 {
		t.Errorf("coverage = %d, want 10000", m.CoveragePctBP)
	}
}

func TestComputeMetricsReconciliationPassedWithinTolerance(t *testing.T) {
	// Declared 100000, observed 95000: 5% variance, within the 10% tolerance.
	txns := []ClassifiedTxn{
		classifiedTxn(t, "fp1", "2025-01-10", 95000, "ent-a", domain.RoleRevenueOperational),
	}
	cfg := DefaultConfig()
	cfg.VarianceToleranceBP = 1000

	m := ComputeMetrics(txns, "uncl", accrualFor(t, 100000, "2025-01-01", "2025-01-31"), cfg)

	if m.ReconciliationStatus != domain.ReconciliationPassed {
		t.Fatalf("status = %s, want PASSED", m.ReconciliationStatus)
	}
	if m.ReconciliationPctBP == nil || *m.ReconciliationPctBP != 9500 {
		t.Errorf("recon pct = %v, want 9500", m.ReconciliationPctBP)
	}
	if m.BankOperationalInflowCents != 95000 {
		t.Errorf("inflow = %d, want 95000", m.BankOperationalInflowCents)
	}
	// Base confidence is min(coverage, recon pct) when reconciled.
	if m.BaseConfidenceBP != 9500 {
		t.Errorf("base confidence = %d, want 9500", m.BaseConfidenceBP)
	}
}

func TestComputeMetricsReconciliationFailedVariance(t *testing.T) {
	// Declared 100000, observed 80000: 20% variance.
	txns := []ClassifiedTxn{
		classifiedTxn(t, "fp1", "2025-01-10", 80000, "ent-a", domain.RoleRevenueOperational),
	}

	m := ComputeMetrics(txns, "uncl", accrualFor(t, 100000, "2025-01-01", "2025-01-31"), DefaultConfig())

	if m.ReconciliationStatus != domain.ReconciliationFailedVariance {
		t.Fatalf("status = %s, want FAILED_VARIANCE", m.ReconciliationStatus)
	}
	if m.ReconciliationPctBP == nil || *m.ReconciliationPctBP != 8000 {
		t.Errorf("recon pct = %v, want 8000", m.ReconciliationPctBP)
	}
	// Failed reconciliation leaves base confidence at coverage.
	if m.BaseConfidenceBP != m.CoveragePctBP {
		t.Errorf("base confidence = %d, want coverage %d", m.BaseConfidenceBP, m.CoveragePctBP)
	}
}

func TestComputeMetricsOverlapGate(t *testing.T) {
	// Period covers only 1 of 3 transaction dates: 3333bp overlap, below
	// the 6000bp gate.
	txns := []ClassifiedTxn{
		classifiedTxn(t, "fp1", "2025-01-10", 50000, "ent-a", domain.RoleRevenueOperational),
		classifiedTxn(t, "fp2", "2025-03-10", 25000, "ent-a", domain.RoleRevenueOperational),
		classifiedTxn(t, "fp3", "2025-04-10", 25000, "ent-a", domain.RoleRevenueOperational),
	}

	m := ComputeMetrics(txns, "uncl", accrualFor(t, 100000, "2025-01-01", "2025-01-31"), DefaultConfig())

	if m.OverlapBP != 3333 {
		t.Errorf("overlap = %d, want 3333", m.OverlapBP)
	}
	if m.ReconciliationStatus != domain.ReconciliationFailedOverlap {
		t.Errorf("status = %s, want FAILED_OVERLAP", m.ReconciliationStatus)
	}
	if m.ReconciliationPctBP != nil {
		t.Error("recon pct must be unset when the overlap gate fails")
	}
}

func TestComputeMetricsNoInflowIsNotRun(t *testing.T) {
	// Only outflows: nothing to compare the declaration against.
	txns := []ClassifiedTxn{
		classifiedTxn(t, "fp1", "2025-01-10", -50000, "ent-a", domain.RoleSupplier),
	}

	m := ComputeMetrics(txns, "uncl", accrualFor(t, 100000, "2025-01-01", "2025-01-31"), DefaultConfig())

	if m.ReconciliationStatus != domain.ReconciliationNotRun {
		t.Errorf("status = %s, want NOT_RUN with zero inflow", m.ReconciliationStatus)
	}
}

func TestComputeMetricsZeroAccrualRevenueIsNotRun(t *testing.T) {
	txns := []ClassifiedTxn{
		classifiedTxn(t, "fp1", "2025-01-10", 50000, "ent-a", domain.RoleRevenueOperational),
	}

	m := ComputeMetrics(txns, "uncl", accrualFor(t, 0, "2025-01-01", "2025-01-31"), DefaultConfig())

	if m.ReconciliationStatus != domain.ReconciliationNotRun {
		t.Errorf("status = %s, want NOT_RUN with zero declared revenue", m.ReconciliationStatus)
	}
}

func TestComputeMetricsInflowWindowedByPeriod(t *testing.T) {
	txns := []ClassifiedTxn{
		classifiedTxn(t, "fp1", "2025-01-10", 60000, "ent-a", domain.RoleRevenueOperational),
		classifiedTxn(t, "fp2", "2025-01-20", 35000, "ent-a", domain.RoleRevenueOperational),
		classifiedTxn(t, "fp3", "2025-02-15", 99000, "ent-a", domain.RoleRevenueOperational),
	}

	m := ComputeMetrics(txns, "uncl", accrualFor(t, 100000, "2025-01-01", "2025-01-31"), DefaultConfig())

	// The February inflow is outside the declared period.
	if m.BankOperationalInflowCents != 95000 {
		t.Errorf("inflow = %d, want 95000", m.BankOperationalInflowCents)
	}
}

func TestMissingMonths(t *testing.T) {
	tests := []struct {
		name  string
		dates []string
		want  int
	}{
		{"contiguous", []string{"2025-01-05", "2025-02-10", "2025-03-15"}, 0},
		{"one gap", []string{"2025-01-05", "2025-03-15"}, 1},
		{"two gaps", []string{"2025-01-05", "2025-04-15"}, 2},
		{"year boundary", []string{"2024-11-05", "2025-02-15"}, 2},
		{"single month", []string{"2025-01-05", "2025-01-25"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txns := make([]ClassifiedTxn, len(tt.dates))
			for i, d := range tt.dates {
				txns[i] = classifiedTxn(t, "fp", d, 1000, "ent-a", domain.RoleRevenueOperational)
			}
			m := ComputeMetrics(txns, "uncl", Accrual{}, DefaultConfig())
			if m.MissingMonthCount != tt.want {
				t.Errorf("missing months = %d, want %d", m.MissingMonthCount, tt.want)
			}
		})
	}
}

func TestMissingMonthPenaltyCapped(t *testing.T) {
	// Seven interior empty months at 1000bp each, capped at 5000bp.
	txns := []ClassifiedTxn{
		classifiedTxn(t, "fp1", "2025-01-05", 1000, "ent-a", domain.RoleRevenueOperational),
		classifiedTxn(t, "fp2", "2025-09-05", 1000, "ent-a", domain.RoleRevenueOperational),
	}

	m := ComputeMetrics(txns, "uncl", Accrual{}, DefaultConfig())

	if m.MissingMonthCount != 7 {
		t.Errorf("missing months = %d, want 7", m.MissingMonthCount)
	}
	if m.MissingMonthPenaltyBP != 5000 {
		t.Errorf("penalty = %d, want capped 5000", m.MissingMonthPenaltyBP)
	}
}

func TestInWindow(t *testing.T) {
	start := mustDate(t, "2025-01-01")
	end := mustDate(t, "2025-01-31")

	tests := []struct {
		date string
		want bool
	}{
		{"2025-01-01", true},
		{"2025-01-31", true},
		{"2025-01-15", true},
		{"2024-12-31", false},
		{"2025-02-01", false},
	}
	for _, tt := range tests {
		if got := inWindow(mustDate(t, tt.date), start, end); got != tt.want {
			t.Errorf("inWindow(%s) = %v, want %v", tt.date, got, tt.want)
		}
	}
}
