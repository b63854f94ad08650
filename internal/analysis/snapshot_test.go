package analysis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dvloznov/parity/internal/domain"
)

func snapshotFixture(t *testing.T, overrides []*domain.Override) BuildInput {
	t.Helper()
	txns := []*domain.Transaction{
		testTxn(t, "fp1", "2025-01-05", 120000, "pos sale acme ltd", "acct-1"),
		testTxn(t, "fp2", "2025-01-15", -30000, "salary j otieno", "acct-1"),
	}
	res := Run("deal-1", txns, overrides, Accrual{}, "export", DefaultConfig())

	return BuildInput{
		Deal:         &domain.Deal{ID: "deal-1", Currency: "GBP", CreatedAt: time.Unix(100, 0)},
		Run:          res.Run,
		Transactions: res.Transactions,
		Links:        res.Links,
		Entities:     res.Entities,
		Mappings:     res.Mappings,
		Breakdown:    res.Breakdown,
		Overrides:    overrides,
		CreatedBy:    "analyst",
	}
}

func TestBuildSnapshotRequiresDealAndRun(t *testing.T) {
	if _, err := BuildSnapshot(BuildInput{}); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestBuildSnapshotPayloadIsValidJSON(t *testing.T) {
	snap, err := BuildSnapshot(snapshotFixture(t, nil))
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}

	if snap.DealID != "deal-1" || snap.CreatedBy != "analyst" {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(snap.SHA256Hash) != 64 || len(snap.FinancialStateHash) != 64 {
		t.Errorf("hashes = %q / %q, want 64 hex chars each", snap.SHA256Hash, snap.FinancialStateHash)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(snap.CanonicalJSON), &payload); err != nil {
		t.Fatalf("canonical payload is not valid JSON: %v", err)
	}
	for _, key := range []string{"transactions", "entities", "txn_entity_map", "metrics", "confidence", "financial_state_hash", "overrides_applied"} {
		if _, ok := payload[key]; !ok {
			t.Errorf("payload missing %q", key)
		}
	}
}

func TestBuildSnapshotDeterministicUnderPermutation(t *testing.T) {
	in := snapshotFixture(t, nil)
	ref, err := BuildSnapshot(in)
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}

	// Reverse every slice; the canonical payload must not change.
	reversed := in
	reversed.Transactions = reverseTxns(in.Transactions)
	reversed.Entities = reverseEntities(in.Entities)
	reversed.Mappings = reverseMappings(in.Mappings)
	reversed.Breakdown = reverseBreakdown(in.Breakdown)

	got, err := BuildSnapshot(reversed)
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}

	if got.CanonicalJSON != ref.CanonicalJSON {
		t.Error("canonical JSON depends on slice order")
	}
	if got.SHA256Hash != ref.SHA256Hash {
		t.Error("sha256 hash depends on slice order")
	}
	if got.FinancialStateHash != ref.FinancialStateHash {
		t.Error("financial state hash depends on slice order")
	}
}

func TestBuildSnapshotNoteChangesOnlyFullHash(t *testing.T) {
	ov := &domain.Override{
		ID:        "ov1",
		DealID:    "deal-1",
		EntityID:  EntityID("deal-1", "salary j otieno"),
		OldRole:   domain.RolePayroll,
		NewRole:   domain.RoleSupplier,
		WeightBP:  5000,
		Note:      "contractor, not staff",
		CreatedAt: time.Unix(100, 0),
	}
	a, err := BuildSnapshot(snapshotFixture(t, []*domain.Override{ov}))
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}

	edited := *ov
	edited.Note = "reclassified per fund call 2025-02"
	b, err := BuildSnapshot(snapshotFixture(t, []*domain.Override{&edited}))
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}

	if a.FinancialStateHash != b.FinancialStateHash {
		t.Error("note text must not affect the financial state hash")
	}
	if a.SHA256Hash == b.SHA256Hash {
		t.Error("note text must affect the full payload hash")
	}
}

func TestBuildSnapshotRoleChangeMovesBothHashes(t *testing.T) {
	a, err := BuildSnapshot(snapshotFixture(t, nil))
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}

	ov := &domain.Override{
		ID:        "ov1",
		DealID:    "deal-1",
		EntityID:  EntityID("deal-1", "salary j otieno"),
		NewRole:   domain.RoleSupplier,
		WeightBP:  5000,
		CreatedAt: time.Unix(100, 0),
	}
	b, err := BuildSnapshot(snapshotFixture(t, []*domain.Override{ov}))
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}

	if a.FinancialStateHash == b.FinancialStateHash {
		t.Error("role change must move the financial state hash")
	}
	if a.SHA256Hash == b.SHA256Hash {
		t.Error("role change must move the full payload hash")
	}
}

func reverseTxns(in []*domain.Transaction) []*domain.Transaction {
	out := make([]*domain.Transaction, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func reverseEntities(in []*domain.Entity) []*domain.Entity {
	out := make([]*domain.Entity, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func reverseMappings(in []*domain.TxnEntityMapping) []*domain.TxnEntityMapping {
	out := make([]*domain.TxnEntityMapping, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func reverseBreakdown(in []*domain.EntityBreakdown) []*domain.EntityBreakdown {
	out := make([]*domain.EntityBreakdown, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
