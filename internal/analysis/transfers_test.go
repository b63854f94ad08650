package analysis

import (
	"testing"

	"github.com/dvloznov/parity/internal/domain"
)

func TestMatchTransfersPairsOppositeLegs(t *testing.T) {
	out := testTxn(t, "fp-out", "2025-03-10", -50000, "transfer to savings", "acct-1")
	in := testTxn(t, "fp-in", "2025-03-11", 50000, "transfer from current", "acct-2")

	links := MatchTransfers("deal-1", []*domain.Transaction{out, in}, DefaultConfig())

	if len(links) != 1 {
		t.Fatalf("links = %d, want 1", len(links))
	}
	l := links[0]
	if l.TxnOutID != "fp-out" || l.TxnInID != "fp-in" {
		t.Errorf("link = %s -> %s, want fp-out -> fp-in", l.TxnOutID, l.TxnInID)
	}
	if l.AbsAmountCents != 50000 {
		t.Errorf("abs amount = %d, want 50000", l.AbsAmountCents)
	}
	if l.RuleVersion != TransferRuleVersion {
		t.Errorf("rule version = %q, want %q", l.RuleVersion, TransferRuleVersion)
	}
	if !out.IsTransfer || !in.IsTransfer {
		t.Error("both legs must be flagged as transfers")
	}
}

func TestMatchTransfersRejectsSameAccount(t *testing.T) {
	txns := []*domain.Transaction{
		testTxn(t, "fp1", "2025-03-10", -50000, "a", "acct-1"),
		testTxn(t, "fp2", "2025-03-10", 50000, "b", "acct-1"),
	}
	if links := MatchTransfers("deal-1", txns, DefaultConfig()); len(links) != 0 {
		t.Errorf("links = %d, want 0 for same-account pair", len(links))
	}
}

func TestMatchTransfersRespectsDayGap(t *testing.T) {
	cfg := DefaultConfig() // TransferMaxDayGap = 2

	within := []*domain.Transaction{
		testTxn(t, "fp1", "2025-03-10", -50000, "a", "acct-1"),
		testTxn(t, "fp2", "2025-03-12", 50000, "b", "acct-2"),
	}
	if links := MatchTransfers("deal-1", within, cfg); len(links) != 1 {
		t.Errorf("links = %d, want 1 for 2-day gap", len(links))
	}

	beyond := []*domain.Transaction{
		testTxn(t, "fp3", "2025-03-10", -50000, "a", "acct-1"),
		testTxn(t, "fp4", "2025-03-13", 50000, "b", "acct-2"),
	}
	if links := MatchTransfers("deal-1", beyond, cfg); len(links) != 0 {
		t.Errorf("links = %d, want 0 for 3-day gap", len(links))
	}
}

func TestMatchTransfersAmbiguousGroupStaysUnmatched(t *testing.T) {
	// Two possible outflow counterparts for the same inflow: no pairing.
	txns := []*domain.Transaction{
		testTxn(t, "fp-in", "2025-03-10", 50000, "in", "acct-1"),
		testTxn(t, "fp-out1", "2025-03-10", -50000, "out a", "acct-2"),
		testTxn(t, "fp-out2", "2025-03-11", -50000, "out b", "acct-3"),
	}

	if links := MatchTransfers("deal-1", txns, DefaultConfig()); len(links) != 0 {
		t.Errorf("links = %d, want 0 for ambiguous group", len(links))
	}
	for _, tx := range txns {
		if tx.IsTransfer {
			t.Errorf("txn %s flagged as transfer in ambiguous group", tx.Fingerprint)
		}
	}
}

func TestMatchTransfersDifferentAmountsNeverPair(t *testing.T) {
	txns := []*domain.Transaction{
		testTxn(t, "fp1", "2025-03-10", -50000, "a", "acct-1"),
		testTxn(t, "fp2", "2025-03-10", 49999, "b", "acct-2"),
	}
	if links := MatchTransfers("deal-1", txns, DefaultConfig()); len(links) != 0 {
		t.Errorf("links = %d, want 0 for unequal amounts", len(links))
	}
}
