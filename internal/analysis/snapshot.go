package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/parity/internal/domain"
)

// payloadMetrics fixes the field order of run metrics inside canonical
// payloads. Only monetary facts; no ids, no timestamps.
type payloadMetrics struct {
	CoveragePctBP              int64                       `json:"coverage_pct_bp"`
	OverlapBP                  int64                       `json:"overlap_bp"`
	MissingMonthCount          int                         `json:"missing_month_count"`
	MissingMonthPenaltyBP      int64                       `json:"missing_month_penalty_bp"`
	ReconciliationStatus       domain.ReconciliationStatus `json:"reconciliation_status"`
	ReconciliationPctBP        *int64                      `json:"reconciliation_pct_bp"`
	BankOperationalInflowCents int64                       `json:"bank_operational_inflow_cents"`
	NonTransferAbsTotalCents   int64                       `json:"non_transfer_abs_total_cents"`
	ClassifiedAbsTotalCents    int64                       `json:"classified_abs_total_cents"`
}

type payloadConfidence struct {
	BaseConfidenceBP  int64       `json:"base_confidence_bp"`
	FinalConfidenceBP int64       `json:"final_confidence_bp"`
	Tier              domain.Tier `json:"tier"`
	TierCapped        bool        `json:"tier_capped"`
	OverridePenaltyBP int64       `json:"override_penalty_bp"`
}

// financialStatePayload is the outcome-only view of a snapshot: entity
// totals, role assignments and run metrics. It deliberately excludes free
// text that carries no monetary meaning (override notes, audit rows), so
// two snapshots with identical financial facts hash identically here even
// when their full payloads differ.
type financialStatePayload struct {
	SchemaVersion      string                     `json:"schema_version"`
	ConfigVersion      string                     `json:"config_version"`
	DealID             string                     `json:"deal_id"`
	Currency           string                     `json:"currency"`
	RawTransactionHash string                     `json:"raw_transaction_hash"`
	Transactions       []*domain.Transaction      `json:"transactions"`
	TransferLinks      []*domain.TransferLink     `json:"transfer_links"`
	Entities           []*domain.Entity           `json:"entities"`
	TxnEntityMap       []*domain.TxnEntityMapping `json:"txn_entity_map"`
	EntityBreakdown    []*domain.EntityBreakdown  `json:"entity_breakdown"`
	Metrics            payloadMetrics             `json:"metrics"`
	Confidence         payloadConfidence          `json:"confidence"`
}

// payloadOverride is the audit view of an override inside the full payload.
// Notes are included: changing one changes sha256_hash but never
// financial_state_hash.
type payloadOverride struct {
	ID       string      `json:"id"`
	EntityID string      `json:"entity_id"`
	OldRole  domain.Role `json:"old_role"`
	NewRole  domain.Role `json:"new_role"`
	WeightBP int64       `json:"weight_bp"`
	Note     string      `json:"note"`
}

type exportPayload struct {
	financialStatePayload
	FinancialStateHash string            `json:"financial_state_hash"`
	OverridesApplied   []payloadOverride `json:"overrides_applied"`
}

// BuildInput is the full deal state a snapshot is computed over.
type BuildInput struct {
	Deal         *domain.Deal
	Run          *domain.AnalysisRun
	Transactions []*domain.Transaction
	Links        []*domain.TransferLink
	Entities     []*domain.Entity
	Mappings     []*domain.TxnEntityMapping
	Breakdown    []*domain.EntityBreakdown
	Overrides    []*domain.Override
	CreatedBy    string
}

// BuildSnapshot assembles the canonical export payload and computes both
// content hashes. Pure function of its inputs: no storage access, and
// identical state reproduces byte-identical canonical JSON and hashes
// regardless of the order the slices arrive in.
func BuildSnapshot(in BuildInput) (*domain.Snapshot, error) {
	if in.Deal == nil || in.Run == nil {
		return nil, fmt.Errorf("build snapshot: deal and run are required")
	}

	fs := financialStatePayload{
		SchemaVersion:      in.Run.SchemaVersion,
		ConfigVersion:      in.Run.ConfigVersion,
		DealID:             in.Deal.ID,
		Currency:           in.Deal.Currency,
		RawTransactionHash: in.Run.RawTransactionHash,
		Transactions:       sortedTxnsCopy(in.Transactions),
		TransferLinks:      sortedLinksCopy(in.Links),
		Entities:           sortedEntitiesCopy(in.Entities),
		TxnEntityMap:       sortedMappingsCopy(in.Mappings),
		EntityBreakdown:    sortedBreakdownCopy(in.Breakdown),
		Metrics: payloadMetrics{
			CoveragePctBP:              in.Run.CoveragePctBP,
			OverlapBP:                  in.Run.OverlapBP,
			MissingMonthCount:          in.Run.MissingMonthCount,
			MissingMonthPenaltyBP:      in.Run.MissingMonthPenaltyBP,
			ReconciliationStatus:       in.Run.ReconciliationStatus,
			ReconciliationPctBP:        in.Run.ReconciliationPctBP,
			BankOperationalInflowCents: in.Run.BankOperationalInflowCents,
			NonTransferAbsTotalCents:   in.Run.NonTransferAbsTotalCents,
			ClassifiedAbsTotalCents:    in.Run.ClassifiedAbsTotalCents,
		},
		Confidence: payloadConfidence{
			BaseConfidenceBP:  in.Run.BaseConfidenceBP,
			FinalConfidenceBP: in.Run.FinalConfidenceBP,
			Tier:              in.Run.Tier,
			TierCapped:        in.Run.TierCapped,
			OverridePenaltyBP: in.Run.OverridePenaltyBP,
		},
	}

	full := exportPayload{
		financialStatePayload: fs,
		FinancialStateHash:    canonicalHash(fs),
		OverridesApplied:      overridePayloads(in.Overrides),
	}

	canonical, err := canonicalJSON(full)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(canonical)

	return &domain.Snapshot{
		ID:                 uuid.New().String(),
		DealID:             in.Deal.ID,
		AnalysisRunID:      in.Run.ID,
		SchemaVersion:      in.Run.SchemaVersion,
		ConfigVersion:      in.Run.ConfigVersion,
		SHA256Hash:         hex.EncodeToString(sum[:]),
		FinancialStateHash: full.FinancialStateHash,
		CanonicalJSON:      string(canonical),
		CreatedBy:          in.CreatedBy,
		CreatedAt:          time.Now().UTC(),
	}, nil
}

func sortedTxnsCopy(txns []*domain.Transaction) []*domain.Transaction {
	out := make([]*domain.Transaction, len(txns))
	copy(out, txns)
	sortTxns(out)
	return out
}

func sortedLinksCopy(links []*domain.TransferLink) []*domain.TransferLink {
	out := make([]*domain.TransferLink, len(links))
	copy(out, links)
	sort.Slice(out, func(i, j int) bool {
		if out[i].TxnOutID != out[j].TxnOutID {
			return out[i].TxnOutID < out[j].TxnOutID
		}
		return out[i].TxnInID < out[j].TxnInID
	})
	return out
}

func sortedEntitiesCopy(entities []*domain.Entity) []*domain.Entity {
	out := make([]*domain.Entity, len(entities))
	copy(out, entities)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedMappingsCopy(mappings []*domain.TxnEntityMapping) []*domain.TxnEntityMapping {
	out := make([]*domain.TxnEntityMapping, len(mappings))
	copy(out, mappings)
	sort.Slice(out, func(i, j int) bool { return out[i].TxnID < out[j].TxnID })
	return out
}

func sortedBreakdownCopy(breakdown []*domain.EntityBreakdown) []*domain.EntityBreakdown {
	out := make([]*domain.EntityBreakdown, len(breakdown))
	copy(out, breakdown)
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

func overridePayloads(overrides []*domain.Override) []payloadOverride {
	out := make([]payloadOverride, 0, len(overrides))
	for _, ov := range overrides {
		out = append(out, payloadOverride{
			ID:       ov.ID,
			EntityID: ov.EntityID,
			OldRole:  ov.OldRole,
			NewRole:  ov.NewRole,
			WeightBP: ov.WeightBP,
			Note:     ov.Note,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityID != out[j].EntityID {
			return out[i].EntityID < out[j].EntityID
		}
		return out[i].ID < out[j].ID
	})
	return out
}
