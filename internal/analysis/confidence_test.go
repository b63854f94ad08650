package analysis

import (
	"testing"
	"time"

	"github.com/dvloznov/parity/internal/domain"
)

func TestDeriveOverrideWeightBP(t *testing.T) {
	tests := []struct {
		name    string
		oldRole domain.Role
		newRole domain.Role
		want    int64
	}{
		{"revert", domain.RoleSupplier, domain.RoleSupplier, 0},
		{"supplier to payroll", domain.RoleSupplier, domain.RolePayroll, 5000},
		{"op to non-op revenue", domain.RoleRevenueOperational, domain.RoleRevenueNonOperational, 5000},
		{"supplier to revenue", domain.RoleSupplier, domain.RoleRevenueOperational, 10000},
		{"revenue to supplier", domain.RoleRevenueNonOperational, domain.RoleSupplier, 10000},
		{"other to revenue", domain.RoleOther, domain.RoleRevenueOperational, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveOverrideWeightBP(tt.oldRole, tt.newRole); got != tt.want {
				t.Errorf("weight = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestComputeOverridePenaltyWeightedByShare(t *testing.T) {
	overrides := []*domain.Override{
		{ID: "ov1", EntityID: "ent-a", WeightBP: 10000, CreatedAt: time.Unix(100, 0)},
	}
	entityAbs := map[string]int64{"ent-a": 25000, "ent-b": 75000}

	got := ComputeOverridePenaltyBP(overrides, entityAbs, 100000, DefaultConfig())

	// 25% share at full weight = 2500bp.
	if got != 2500 {
		t.Errorf("penalty = %d, want 2500", got)
	}
}

func TestComputeOverridePenaltyLatestPerEntityWins(t *testing.T) {
	overrides := []*domain.Override{
		{ID: "ov1", EntityID: "ent-a", WeightBP: 10000, CreatedAt: time.Unix(100, 0)},
		// The later revert zeroes ent-a's contribution.
		{ID: "ov2", EntityID: "ent-a", WeightBP: 0, CreatedAt: time.Unix(200, 0)},
	}
	entityAbs := map[string]int64{"ent-a": 100000}

	if got := ComputeOverridePenaltyBP(overrides, entityAbs, 100000, DefaultConfig()); got != 0 {
		t.Errorf("penalty = %d, want 0 after revert", got)
	}
}

func TestComputeOverridePenaltyTiebreakOnEqualTimestamps(t *testing.T) {
	ts := time.Unix(100, 0)
	overrides := []*domain.Override{
		{ID: "ov1", EntityID: "ent-a", WeightBP: 10000, CreatedAt: ts},
		{ID: "ov2", EntityID: "ent-a", WeightBP: 0, CreatedAt: ts},
	}
	entityAbs := map[string]int64{"ent-a": 100000}

	// Equal timestamps break on id; ov2 wins.
	if got := ComputeOverridePenaltyBP(overrides, entityAbs, 100000, DefaultConfig()); got != 0 {
		t.Errorf("penalty = %d, want 0", got)
	}
}

func TestComputeOverridePenaltyCapped(t *testing.T) {
	overrides := []*domain.Override{
		{ID: "ov1", EntityID: "ent-a", WeightBP: 10000, CreatedAt: time.Unix(100, 0)},
		{ID: "ov2", EntityID: "ent-b", WeightBP: 10000, CreatedAt: time.Unix(100, 0)},
	}
	entityAbs := map[string]int64{"ent-a": 80000, "ent-b": 20000}

	cfg := DefaultConfig()
	cfg.OverridePenaltyCapBP = 7000

	// Uncapped impact would be 10000bp.
	if got := ComputeOverridePenaltyBP(overrides, entityAbs, 100000, cfg); got != 7000 {
		t.Errorf("penalty = %d, want capped 7000", got)
	}
}

func TestComputeOverridePenaltyZeroTotal(t *testing.T) {
	overrides := []*domain.Override{
		{ID: "ov1", EntityID: "ent-a", WeightBP: 10000, CreatedAt: time.Unix(100, 0)},
	}
	if got := ComputeOverridePenaltyBP(overrides, nil, 0, DefaultConfig()); got != 0 {
		t.Errorf("penalty = %d, want 0 with no volume", got)
	}
}

func TestFinalizeConfidenceTiers(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name       string
		base       int64
		missing    int64
		override   int64
		status     domain.ReconciliationStatus
		wantFinal  int64
		wantTier   domain.Tier
		wantCapped bool
	}{
		{"high passed", 9000, 0, 0, domain.ReconciliationPassed, 9000, domain.TierHigh, false},
		{"high unreconciled capped", 9000, 0, 0, domain.ReconciliationNotRun, 9000, domain.TierMedium, true},
		{"high failed variance capped", 9000, 0, 0, domain.ReconciliationFailedVariance, 9000, domain.TierMedium, true},
		{"medium", 7500, 0, 0, domain.ReconciliationPassed, 7500, domain.TierMedium, false},
		{"low", 5000, 0, 0, domain.ReconciliationPassed, 5000, domain.TierLow, false},
		{"penalties subtract", 9000, 1000, 1500, domain.ReconciliationPassed, 6500, domain.TierLow, false},
		{"floor at zero", 2000, 5000, 7000, domain.ReconciliationNotRun, 0, domain.TierLow, false},
		{"high boundary", 8500, 0, 0, domain.ReconciliationPassed, 8500, domain.TierHigh, false},
		{"medium boundary", 7000, 0, 0, domain.ReconciliationPassed, 7000, domain.TierMedium, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := FinalizeConfidence(tt.base, tt.missing, tt.override, tt.status, cfg)
			if c.FinalConfidenceBP != tt.wantFinal {
				t.Errorf("final = %d, want %d", c.FinalConfidenceBP, tt.wantFinal)
			}
			if c.Tier != tt.wantTier {
				t.Errorf("tier = %s, want %s", c.Tier, tt.wantTier)
			}
			if c.TierCapped != tt.wantCapped {
				t.Errorf("capped = %v, want %v", c.TierCapped, tt.wantCapped)
			}
		})
	}
}
