package analysis

import (
	"sort"

	"github.com/dvloznov/parity/internal/domain"
)

// Confidence is the scored trust level of an analysis run.
type Confidence struct {
	FinalConfidenceBP int64
	Tier              domain.Tier
	TierCapped        bool
	OverridePenaltyBP int64
}

// DeriveOverrideWeightBP scores how disruptive a reclassification is.
// Reverting to the current role is neutral; moving an entity across the
// revenue/non-revenue boundary is major; everything else is minor.
func DeriveOverrideWeightBP(oldRole, newRole domain.Role) int64 {
	if oldRole == newRole {
		return 0
	}
	oldRevenue := oldRole == domain.RoleRevenueOperational || oldRole == domain.RoleRevenueNonOperational
	newRevenue := newRole == domain.RoleRevenueOperational || newRole == domain.RoleRevenueNonOperational
	if oldRevenue != newRevenue {
		return 10000
	}
	return 5000
}

// ComputeOverridePenaltyBP charges confidence for manual reclassifications,
// weighted by the affected entity's share of non-transfer volume. Only the
// latest override per entity counts. Capped at cfg.OverridePenaltyCapBP.
func ComputeOverridePenaltyBP(overrides []*domain.Override, entityAbsValues map[string]int64, nonTransferAbsTotal int64, cfg Config) int64 {
	if nonTransferAbsTotal <= 0 || len(overrides) == 0 {
		return 0
	}

	latest := latestPerEntity(overrides)

	var impactBP int64
	for entityID, ov := range latest {
		val := entityAbsValues[entityID]
		if val < 0 {
			val = -val
		}
		if val == 0 {
			continue
		}
		// Integer arithmetic throughout: share in bp, then weighted.
		shareBP := val * 10000 / nonTransferAbsTotal
		impactBP += shareBP * ov.WeightBP / 10000
	}

	if impactBP > cfg.OverridePenaltyCapBP {
		return cfg.OverridePenaltyCapBP
	}
	return impactBP
}

// latestPerEntity picks the newest override per entity, ordering by
// creation time with id as a deterministic tiebreak.
func latestPerEntity(overrides []*domain.Override) map[string]*domain.Override {
	sorted := make([]*domain.Override, len(overrides))
	copy(sorted, overrides)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].ID > sorted[j].ID
	})

	latest := make(map[string]*domain.Override)
	for _, ov := range sorted {
		if ov.EntityID == "" {
			continue
		}
		if _, ok := latest[ov.EntityID]; !ok {
			latest[ov.EntityID] = ov
		}
	}
	return latest
}

// FinalizeConfidence applies penalties to the base confidence and buckets
// the result into a tier. A High tier is capped to Medium whenever
// reconciliation did not pass: unreconciled numbers never present as
// top-trust.
func FinalizeConfidence(baseBP, missingMonthPenaltyBP, overridePenaltyBP int64, status domain.ReconciliationStatus, cfg Config) Confidence {
	final := baseBP - missingMonthPenaltyBP - overridePenaltyBP
	if final < 0 {
		final = 0
	}

	tier := domain.TierLow
	switch {
	case final >= cfg.TierHighBP:
		tier = domain.TierHigh
	case final >= cfg.TierMediumBP:
		tier = domain.TierMedium
	}

	capped := false
	if status != domain.ReconciliationPassed && tier == domain.TierHigh {
		tier = domain.TierMedium
		capped = true
	}

	return Confidence{
		FinalConfidenceBP: final,
		Tier:              tier,
		TierCapped:        capped,
		OverridePenaltyBP: overridePenaltyBP,
	}
}
