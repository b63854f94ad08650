package analysis

import (
	"cloud.google.com/go/civil"

	"github.com/dvloznov/parity/internal/domain"
)

// ClassifiedTxn is one transaction with its resolved entity and effective
// role (classifier output, replaced by the latest override for the entity).
type ClassifiedTxn struct {
	Txn      *domain.Transaction
	EntityID string
	Role     domain.Role
}

// Accrual is the deal's self-reported revenue declaration. Reconciliation
// runs only when all three fields are present and revenue is positive.
type Accrual struct {
	RevenueCents *int64
	PeriodStart  *civil.Date
	PeriodEnd    *civil.Date
}

func (a Accrual) complete() bool {
	return a.RevenueCents != nil && *a.RevenueCents > 0 && a.PeriodStart != nil && a.PeriodEnd != nil
}

// Metrics is the output of one reconciliation pass. All percentages are
// basis points, all money integer cents; no floating point anywhere.
type Metrics struct {
	NonTransferAbsTotalCents int64
	ClassifiedAbsTotalCents  int64

	CoveragePctBP int64
	OverlapBP     int64

	ReconciliationStatus       domain.ReconciliationStatus
	ReconciliationPctBP        *int64
	BankOperationalInflowCents int64

	MissingMonthCount     int
	MissingMonthPenaltyBP int64

	BaseConfidenceBP int64
}

// ComputeMetrics runs the reconciliation engine over a deal's classified
// transactions. unclassifiedEntityID identifies the synthetic catch-all
// entity; transactions mapped to it count against coverage.
//
// Defined states, never errors: zero transactions, absent accrual and
// zero accrual revenue all yield NOT_RUN.
func ComputeMetrics(txns []ClassifiedTxn, unclassifiedEntityID string, accrual Accrual, cfg Config) Metrics {
	if len(txns) == 0 {
		return Metrics{ReconciliationStatus: domain.ReconciliationNotRun}
	}

	var m Metrics
	m.ReconciliationStatus = domain.ReconciliationNotRun

	mappedCount := 0
	inPeriodCount := 0
	for _, ct := range txns {
		if ct.EntityID != unclassifiedEntityID {
			mappedCount++
		}
		if accrual.PeriodStart != nil && accrual.PeriodEnd != nil &&
			inWindow(ct.Txn.TxnDate, *accrual.PeriodStart, *accrual.PeriodEnd) {
			inPeriodCount++
		}

		if ct.Txn.IsTransfer {
			continue
		}
		abs := ct.Txn.AbsAmountCents()
		m.NonTransferAbsTotalCents += abs
		if ct.Role != domain.RoleOther {
			m.ClassifiedAbsTotalCents += abs
		}

		// Operational inflow is reported even when reconciliation cannot
		// run; without a declared period the whole active window counts.
		if ct.Txn.SignedAmountCents > 0 && ct.Role == domain.RoleRevenueOperational {
			if accrual.PeriodStart == nil || accrual.PeriodEnd == nil ||
				inWindow(ct.Txn.TxnDate, *accrual.PeriodStart, *accrual.PeriodEnd) {
				m.BankOperationalInflowCents += ct.Txn.SignedAmountCents
			}
		}
	}

	total := int64(len(txns))
	m.CoveragePctBP = int64(mappedCount) * 10000 / total
	m.OverlapBP = int64(inPeriodCount) * 10000 / total

	m.MissingMonthCount = missingMonths(txns)
	m.MissingMonthPenaltyBP = int64(m.MissingMonthCount) * cfg.MissingMonthPenaltyBP
	if m.MissingMonthPenaltyBP > cfg.MissingMonthPenaltyCapBP {
		m.MissingMonthPenaltyBP = cfg.MissingMonthPenaltyCapBP
	}

	if accrual.complete() {
		switch {
		case m.OverlapBP < cfg.OverlapGateBP:
			m.ReconciliationStatus = domain.ReconciliationFailedOverlap
		case m.BankOperationalInflowCents <= 0:
			// Nothing observed to compare against; variance is undefined.
			m.ReconciliationStatus = domain.ReconciliationNotRun
		default:
			revenue := *accrual.RevenueCents
			diff := revenue - m.BankOperationalInflowCents
			if diff < 0 {
				diff = -diff
			}
			varianceBP := diff * 10000 / revenue
			reconBP := int64(10000) - varianceBP
			if reconBP < 0 {
				reconBP = 0
			}
			m.ReconciliationPctBP = &reconBP
			if varianceBP <= cfg.VarianceToleranceBP {
				m.ReconciliationStatus = domain.ReconciliationPassed
			} else {
				m.ReconciliationStatus = domain.ReconciliationFailedVariance
			}
		}
	}

	m.BaseConfidenceBP = m.CoveragePctBP
	if m.ReconciliationStatus == domain.ReconciliationPassed && m.ReconciliationPctBP != nil &&
		*m.ReconciliationPctBP < m.BaseConfidenceBP {
		m.BaseConfidenceBP = *m.ReconciliationPctBP
	}

	return m
}

func inWindow(d, start, end civil.Date) bool {
	return !d.Before(start) && !d.After(end)
}

// missingMonths counts interior calendar months — strictly between the first
// and last transaction months — that contain no transactions at all.
// Partial leading and trailing months are never penalized.
func missingMonths(txns []ClassifiedTxn) int {
	if len(txns) == 0 {
		return 0
	}
	seen := make(map[int]bool)
	minM, maxM := 0, 0
	for i, ct := range txns {
		m := ct.Txn.TxnDate.Year*12 + int(ct.Txn.TxnDate.Month) - 1
		seen[m] = true
		if i == 0 || m < minM {
			minM = m
		}
		if i == 0 || m > maxM {
			maxM = m
		}
	}
	missing := 0
	for m := minM + 1; m < maxM; m++ {
		if !seen[m] {
			missing++
		}
	}
	return missing
}
