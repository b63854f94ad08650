package analysis

import (
	"math/rand"
	"testing"
	"time"

	"github.com/dvloznov/parity/internal/domain"
)

func samplePortfolio(t *testing.T) []*domain.Transaction {
	t.Helper()
	return []*domain.Transaction{
		testTxn(t, "fp1", "2025-01-05", 120000, "pos sale acme ltd", "acct-1"),
		testTxn(t, "fp2", "2025-01-12", 80000, "pos sale acme ltd", "acct-1"),
		testTxn(t, "fp3", "2025-01-15", -30000, "salary j otieno", "acct-1"),
		testTxn(t, "fp4", "2025-02-03", -15000, "kra paye", "acct-1"),
		testTxn(t, "fp5", "2025-02-10", -50000, "transfer to savings", "acct-1"),
		testTxn(t, "fp6", "2025-02-10", 50000, "transfer from current", "acct-2"),
		testTxn(t, "fp7", "2025-02-20", 5000, "", "acct-1"),
	}
}

func TestRunBasicPipeline(t *testing.T) {
	txns := samplePortfolio(t)
	res := Run("deal-1", txns, nil, Accrual{}, "export", DefaultConfig())

	if res.Run.DealID != "deal-1" || res.Run.RunTrigger != "export" {
		t.Errorf("run = %+v, want deal-1/export", res.Run)
	}
	if res.Run.SchemaVersion != SchemaVersion || res.Run.ConfigVersion != ConfigVersion {
		t.Error("run must carry the engine versions")
	}

	if len(res.Links) != 1 {
		t.Fatalf("links = %d, want 1 matched transfer", len(res.Links))
	}
	// 350000 total abs minus the two 50000 transfer legs.
	if res.Run.NonTransferAbsTotalCents != 250000 {
		t.Errorf("non-transfer total = %d, want 250000", res.Run.NonTransferAbsTotalCents)
	}
	// 6 of 7 rows map to named entities.
	if res.Run.CoveragePctBP != 8571 {
		t.Errorf("coverage = %d, want 8571", res.Run.CoveragePctBP)
	}
	if res.Run.ReconciliationStatus != domain.ReconciliationNotRun {
		t.Errorf("status = %s, want NOT_RUN without accrual", res.Run.ReconciliationStatus)
	}
	if len(res.Mappings) != len(txns) {
		t.Errorf("mappings = %d, want one per transaction", len(res.Mappings))
	}
}

func TestRunDoesNotMutateInput(t *testing.T) {
	txns := samplePortfolio(t)
	Run("deal-1", txns, nil, Accrual{}, "export", DefaultConfig())

	for _, tx := range txns {
		if tx.IsTransfer {
			t.Fatalf("input transaction %s was mutated", tx.Fingerprint)
		}
	}
}

func TestRunPermutationStable(t *testing.T) {
	base := samplePortfolio(t)
	ref := Run("deal-1", base, nil, Accrual{}, "export", DefaultConfig())

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5; i++ {
		shuffled := make([]*domain.Transaction, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := Run("deal-1", shuffled, nil, Accrual{}, "export", DefaultConfig())

		if got.Run.RawTransactionHash != ref.Run.RawTransactionHash {
			t.Fatal("raw transaction hash depends on input order")
		}
		if got.Run.EntitiesHash != ref.Run.EntitiesHash {
			t.Fatal("entities hash depends on input order")
		}
		if got.Run.TransferLinksHash != ref.Run.TransferLinksHash {
			t.Fatal("transfer links hash depends on input order")
		}
		if got.Run.FinalConfidenceBP != ref.Run.FinalConfidenceBP ||
			got.Run.CoveragePctBP != ref.Run.CoveragePctBP {
			t.Fatal("metrics depend on input order")
		}
	}
}

func TestRunOverrideReplacesClassifierRole(t *testing.T) {
	txns := []*domain.Transaction{
		testTxn(t, "fp1", "2025-01-05", 120000, "pos sale acme ltd", "acct-1"),
	}
	entityID := EntityID("deal-1", "pos sale acme ltd")
	overrides := []*domain.Override{
		{
			ID:        "ov1",
			DealID:    "deal-1",
			EntityID:  entityID,
			OldRole:   domain.RoleRevenueOperational,
			NewRole:   domain.RoleRevenueNonOperational,
			WeightBP:  5000,
			CreatedAt: time.Unix(100, 0),
		},
	}

	res := Run("deal-1", txns, overrides, Accrual{}, "override", DefaultConfig())

	if len(res.Mappings) != 1 || res.Mappings[0].Role != domain.RoleRevenueNonOperational {
		t.Errorf("mapping role = %v, want override applied", res.Mappings[0].Role)
	}
	for _, ent := range res.Entities {
		if ent.ID == entityID && ent.Role != domain.RoleRevenueNonOperational {
			t.Errorf("entity role = %s, want override applied", ent.Role)
		}
	}
	if res.Run.OverridePenaltyBP == 0 {
		t.Error("boundary-crossing override must charge a confidence penalty")
	}
	if res.Run.OverridesHash == "" {
		t.Error("overrides hash must be set")
	}
}

func TestRunOverrideMovesInflowOutOfOperationalRevenue(t *testing.T) {
	txns := []*domain.Transaction{
		testTxn(t, "fp1", "2025-01-10", 95000, "client payment alpha", "acct-1"),
	}
	accrual := accrualFor(t, 100000, "2025-01-01", "2025-01-31")

	before := Run("deal-1", txns, nil, accrual, "export", DefaultConfig())
	if before.Run.ReconciliationStatus != domain.ReconciliationPassed {
		t.Fatalf("precondition: status = %s, want PASSED", before.Run.ReconciliationStatus)
	}

	entityID := EntityID("deal-1", "client payment alpha")
	overrides := []*domain.Override{
		{
			ID:        "ov1",
			DealID:    "deal-1",
			EntityID:  entityID,
			NewRole:   domain.RoleRevenueNonOperational,
			WeightBP:  5000,
			CreatedAt: time.Unix(100, 0),
		},
	}

	after := Run("deal-1", txns, overrides, accrual, "override", DefaultConfig())

	if after.Run.BankOperationalInflowCents != 0 {
		t.Errorf("inflow = %d, want 0 after reclassification", after.Run.BankOperationalInflowCents)
	}
	if after.Run.ReconciliationStatus == domain.ReconciliationPassed {
		t.Error("reconciliation must not pass with zero operational inflow")
	}
}

func TestRunTransferLegsMapToRoleOther(t *testing.T) {
	txns := []*domain.Transaction{
		testTxn(t, "fp1", "2025-02-10", -50000, "transfer to savings", "acct-1"),
		testTxn(t, "fp2", "2025-02-10", 50000, "transfer from current", "acct-2"),
	}

	res := Run("deal-1", txns, nil, Accrual{}, "export", DefaultConfig())

	if len(res.Links) != 1 {
		t.Fatalf("links = %d, want 1", len(res.Links))
	}
	for _, m := range res.Mappings {
		if m.Role != domain.RoleOther {
			t.Errorf("transfer leg mapping role = %s, want other", m.Role)
		}
	}
}

func TestRunBreakdownShares(t *testing.T) {
	txns := []*domain.Transaction{
		testTxn(t, "fp1", "2025-01-05", 75000, "pos sale acme ltd", "acct-1"),
		testTxn(t, "fp2", "2025-01-06", -25000, "beta supplies", "acct-1"),
	}

	res := Run("deal-1", txns, nil, Accrual{}, "export", DefaultConfig())

	if len(res.Breakdown) != 2 {
		t.Fatalf("breakdown = %d entries, want 2", len(res.Breakdown))
	}
	var acmeBP, betaBP int64
	for _, bd := range res.Breakdown {
		switch bd.DisplayName {
		case "pos sale acme ltd":
			acmeBP = bd.PercentBP
			if bd.TotalCents != 75000 || bd.AbsTotalCents != 75000 || bd.TxnCount != 1 {
				t.Errorf("acme breakdown = %+v", bd)
			}
		case "beta supplies":
			betaBP = bd.PercentBP
			if bd.TotalCents != -25000 || bd.AbsTotalCents != 25000 {
				t.Errorf("beta breakdown = %+v", bd)
			}
		}
	}
	if acmeBP != 7500 || betaBP != 2500 {
		t.Errorf("shares = %d/%d, want 7500/2500", acmeBP, betaBP)
	}
}
