package analysis

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/parity/internal/domain"
)

// Result is the complete output of one pipeline execution: the analysis run
// plus the derived state that feeds snapshot building and persistence.
type Result struct {
	Run          *domain.AnalysisRun
	Transactions []*domain.Transaction
	Links        []*domain.TransferLink
	Entities     []*domain.Entity
	Mappings     []*domain.TxnEntityMapping
	Breakdown    []*domain.EntityBreakdown
}

// Run executes the full analysis pipeline for one deal: transfer matching,
// entity resolution, classification with override application, metrics,
// confidence. It is a pure linear pass over its inputs; identical inputs
// always produce identical metrics and hashes regardless of input order.
//
// trigger records what caused the run ("export" or "override").
func Run(dealID string, txns []*domain.Transaction, overrides []*domain.Override, accrual Accrual, trigger string, cfg Config) *Result {
	// Work on copies: the matcher flags transfers in place and callers keep
	// their slices immutable.
	rows := make([]*domain.Transaction, len(txns))
	for i, tx := range txns {
		cp := *tx
		cp.IsTransfer = false
		rows[i] = &cp
	}
	sortTxns(rows)

	links := MatchTransfers(dealID, rows, cfg)
	entities, txnEntity := ResolveEntities(dealID, rows)
	unclassifiedID := EntityID(dealID, domain.UnclassifiedEntityName)

	// Effective role per transaction: classifier seed, replaced by the
	// latest override on the resolved entity. Transfer legs are internal
	// movements, not counterparty flows.
	overrideRoles := make(map[string]domain.Role)
	for entityID, ov := range latestPerEntity(overrides) {
		overrideRoles[entityID] = ov.NewRole
	}

	classified := make([]ClassifiedTxn, len(rows))
	mappings := make([]*domain.TxnEntityMapping, len(rows))
	for i, tx := range rows {
		entityID := txnEntity[tx.Fingerprint]
		role := ClassifyRole(tx.NormalizedDescriptor, tx.SignedAmountCents)
		if tx.IsTransfer {
			role = domain.RoleOther
		}
		if r, ok := overrideRoles[entityID]; ok && !tx.IsTransfer {
			role = r
		}
		classified[i] = ClassifiedTxn{Txn: tx, EntityID: entityID, Role: role}
		mappings[i] = &domain.TxnEntityMapping{
			DealID:   dealID,
			TxnID:    tx.Fingerprint,
			EntityID: entityID,
			Role:     role,
		}
	}
	sort.Slice(mappings, func(i, j int) bool { return mappings[i].TxnID < mappings[j].TxnID })

	assignEntityRoles(entities, classified, overrideRoles, unclassifiedID)

	metrics := ComputeMetrics(classified, unclassifiedID, accrual, cfg)

	entityAbsValues := make(map[string]int64)
	for _, ct := range classified {
		entityAbsValues[ct.EntityID] += ct.Txn.AbsAmountCents()
	}
	overridePenaltyBP := ComputeOverridePenaltyBP(overrides, entityAbsValues, metrics.NonTransferAbsTotalCents, cfg)
	confidence := FinalizeConfidence(metrics.BaseConfidenceBP, metrics.MissingMonthPenaltyBP, overridePenaltyBP, metrics.ReconciliationStatus, cfg)

	breakdown := buildBreakdown(entities, classified, metrics.NonTransferAbsTotalCents)

	sortedOverrides := make([]*domain.Override, len(overrides))
	copy(sortedOverrides, overrides)
	sort.Slice(sortedOverrides, func(i, j int) bool { return sortedOverrides[i].ID < sortedOverrides[j].ID })

	run := &domain.AnalysisRun{
		ID:            uuid.New().String(),
		DealID:        dealID,
		SchemaVersion: SchemaVersion,
		ConfigVersion: ConfigVersion,
		RunTrigger:    trigger,

		NonTransferAbsTotalCents: metrics.NonTransferAbsTotalCents,
		ClassifiedAbsTotalCents:  metrics.ClassifiedAbsTotalCents,
		CoveragePctBP:            metrics.CoveragePctBP,

		OverlapBP:                  metrics.OverlapBP,
		ReconciliationStatus:       metrics.ReconciliationStatus,
		ReconciliationPctBP:        metrics.ReconciliationPctBP,
		BankOperationalInflowCents: metrics.BankOperationalInflowCents,

		MissingMonthCount:     metrics.MissingMonthCount,
		MissingMonthPenaltyBP: metrics.MissingMonthPenaltyBP,
		OverridePenaltyBP:     confidence.OverridePenaltyBP,

		BaseConfidenceBP:  metrics.BaseConfidenceBP,
		FinalConfidenceBP: confidence.FinalConfidenceBP,
		Tier:              confidence.Tier,
		TierCapped:        confidence.TierCapped,

		RawTransactionHash: canonicalHash(rows),
		EntitiesHash:       canonicalHash(entities),
		TransferLinksHash:  canonicalHash(links),
		OverridesHash:      canonicalHash(sortedOverrides),

		CreatedAt: time.Now().UTC(),
	}

	return &Result{
		Run:          run,
		Transactions: rows,
		Links:        links,
		Entities:     entities,
		Mappings:     mappings,
		Breakdown:    breakdown,
	}
}

// assignEntityRoles sets each entity's current role: the latest override
// when one exists, otherwise the classifier role of the entity's first
// transaction in canonical order. The Unclassified entity is always other.
func assignEntityRoles(entities []*domain.Entity, classified []ClassifiedTxn, overrideRoles map[string]domain.Role, unclassifiedID string) {
	firstRole := make(map[string]domain.Role, len(entities))
	for _, ct := range classified {
		if _, ok := firstRole[ct.EntityID]; !ok {
			firstRole[ct.EntityID] = ct.Role
		}
	}
	for _, ent := range entities {
		switch {
		case ent.ID == unclassifiedID:
			ent.Role = domain.RoleOther
		case overrideRoles[ent.ID] != "":
			ent.Role = overrideRoles[ent.ID]
		case firstRole[ent.ID] != "":
			ent.Role = firstRole[ent.ID]
		default:
			ent.Role = domain.RoleOther
		}
	}
}

// buildBreakdown computes the per-entity aggregates exposed in exports.
// Totals exclude transfer legs; TxnCount counts every mapped transaction.
func buildBreakdown(entities []*domain.Entity, classified []ClassifiedTxn, nonTransferAbsTotal int64) []*domain.EntityBreakdown {
	byEntity := make(map[string]*domain.EntityBreakdown, len(entities))
	out := make([]*domain.EntityBreakdown, 0, len(entities))
	for _, ent := range entities {
		bd := &domain.EntityBreakdown{
			EntityID:    ent.ID,
			DisplayName: ent.DisplayName,
			Role:        ent.Role,
		}
		byEntity[ent.ID] = bd
		out = append(out, bd)
	}

	for _, ct := range classified {
		bd := byEntity[ct.EntityID]
		if bd == nil {
			continue
		}
		bd.TxnCount++
		if ct.Txn.IsTransfer {
			continue
		}
		bd.TotalCents += ct.Txn.SignedAmountCents
		bd.AbsTotalCents += ct.Txn.AbsAmountCents()
	}

	if nonTransferAbsTotal > 0 {
		for _, bd := range out {
			bd.PercentBP = bd.AbsTotalCents * 10000 / nonTransferAbsTotal
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// sortTxns orders transactions canonically by (date, account, amount,
// descriptor, fingerprint). Same ordering the parsers emit; re-applied here
// so hashing never depends on storage iteration order.
func sortTxns(rows []*domain.Transaction) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.TxnDate != b.TxnDate {
			return a.TxnDate.Before(b.TxnDate)
		}
		if a.AccountID != b.AccountID {
			return a.AccountID < b.AccountID
		}
		if a.SignedAmountCents != b.SignedAmountCents {
			return a.SignedAmountCents < b.SignedAmountCents
		}
		if a.NormalizedDescriptor != b.NormalizedDescriptor {
			return a.NormalizedDescriptor < b.NormalizedDescriptor
		}
		return a.Fingerprint < b.Fingerprint
	})
}
