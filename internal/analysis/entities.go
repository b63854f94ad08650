package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/dvloznov/parity/internal/domain"
)

// EntityID derives the deterministic id for an entity within a deal:
// sha256(deal_id|normalized_name). Re-running resolution over the same
// transactions always reproduces the same ids.
func EntityID(dealID, normalizedName string) string {
	sum := sha256.Sum256([]byte(dealID + "|" + normalizedName))
	return hex.EncodeToString(sum[:])
}

// ResolveEntities derives the canonical counterparty set from transaction
// descriptors. Resolution keys on the normalized descriptor within the deal:
// the first occurrence creates the entity, later occurrences reuse it.
// Transactions with empty descriptors map to the synthetic Unclassified
// entity.
//
// Returns entities sorted by id and the txn fingerprint -> entity id map.
// Entity roles are not assigned here; the pipeline sets them after
// classification and override application.
func ResolveEntities(dealID string, txns []*domain.Transaction) ([]*domain.Entity, map[string]string) {
	byName := make(map[string]*domain.Entity)
	txnEntity := make(map[string]string, len(txns))
	var entities []*domain.Entity

	for _, tx := range txns {
		name := tx.NormalizedDescriptor
		display := tx.RawDescriptor
		if name == "" {
			name = domain.UnclassifiedEntityName
			display = "Unclassified"
		}
		ent, ok := byName[name]
		if !ok {
			ent = &domain.Entity{
				ID:             EntityID(dealID, name),
				DealID:         dealID,
				NormalizedName: name,
				DisplayName:    display,
			}
			byName[name] = ent
			entities = append(entities, ent)
		}
		txnEntity[tx.Fingerprint] = ent.ID
	}

	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	return entities, txnEntity
}
