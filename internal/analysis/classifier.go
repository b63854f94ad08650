package analysis

import (
	"strings"

	"github.com/dvloznov/parity/internal/domain"
)

// Keyword tables for deterministic role classification. Matching is plain
// substring containment on the normalized descriptor, no regex, no fuzzing.
// Table order matters: loan/capital/refund run before revenue-operational so
// "loan repayment" matches the loan table, not "payment".
var (
	loanKeywords      = []string{"loan", "facility", "credit", "disbursement"}
	capitalKeywords   = []string{"capital", "director", "owner", "shareholder", "investment", "equity"}
	refundKeywords    = []string{"reversal", "refund", "chargeback"}
	revenueOpKeywords = []string{"sale", "pos", "mpesa", "payment", "client", "receipt"}
	payrollKeywords   = []string{"salary", "payroll", "wages", "staff"}
	taxKeywords       = []string{"tax", "kra", "vat", "paye"}
)

func matchesAny(descriptor string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(descriptor, kw) {
			return true
		}
	}
	return false
}

// ClassifyRole derives the initial role for a transaction from its
// normalized descriptor and amount sign. This is a best-effort seed; it is
// expected to be corrected via overrides.
//
// Empty descriptors classify as other: they resolve to the synthetic
// Unclassified entity and must not pollute the revenue or supplier buckets.
func ClassifyRole(normalizedDescriptor string, signedAmountCents int64) domain.Role {
	d := normalizedDescriptor
	if d == "" {
		return domain.RoleOther
	}

	// Loan, capital injection and refund flows are non-operational money in
	// and supplier-side money out.
	if matchesAny(d, loanKeywords) || matchesAny(d, capitalKeywords) || matchesAny(d, refundKeywords) {
		if signedAmountCents > 0 {
			return domain.RoleRevenueNonOperational
		}
		return domain.RoleSupplier
	}

	if matchesAny(d, revenueOpKeywords) {
		return domain.RoleRevenueOperational
	}
	if matchesAny(d, payrollKeywords) {
		return domain.RolePayroll
	}
	if matchesAny(d, taxKeywords) {
		return domain.RoleSupplier
	}

	// Sign fallback.
	switch {
	case signedAmountCents > 0:
		return domain.RoleRevenueOperational
	case signedAmountCents < 0:
		return domain.RoleSupplier
	default:
		return domain.RoleOther
	}
}
