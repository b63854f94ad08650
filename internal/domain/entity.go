package domain

import "time"

// Role classifies an entity's cash-flow relationship with the deal.
type Role string

const (
	RoleSupplier              Role = "supplier"
	RolePayroll               Role = "payroll"
	RoleRevenueOperational    Role = "revenue_operational"
	RoleRevenueNonOperational Role = "revenue_non_operational"
	RoleOther                 Role = "other"
)

// ValidRole reports whether r is one of the known role values.
func ValidRole(r Role) bool {
	switch r {
	case RoleSupplier, RolePayroll, RoleRevenueOperational, RoleRevenueNonOperational, RoleOther:
		return true
	}
	return false
}

// UnclassifiedEntityName is the normalized name of the synthetic entity that
// absorbs transactions with empty or unusable descriptors.
const UnclassifiedEntityName = "unclassified"

// Entity is a resolved counterparty within a deal. The id is a deterministic
// content hash of (deal id, normalized name), so re-running resolution over
// the same transactions always yields the same entities.
type Entity struct {
	ID             string    `json:"entity_id"`
	DealID         string    `json:"deal_id"`
	NormalizedName string    `json:"normalized_name"`
	DisplayName    string    `json:"display_name"`
	Role           Role      `json:"role"` // current classification, mutable via Override
	CreatedAt      time.Time `json:"-"`
}

// Unclassified reports whether this is the synthetic catch-all entity.
func (e *Entity) Unclassified() bool {
	return e.NormalizedName == UnclassifiedEntityName
}

// TxnEntityMapping is the many-to-one relation transaction -> entity. Role
// snapshots the classification as applied to that transaction at mapping
// time; the historical fact of the mapping never changes.
type TxnEntityMapping struct {
	DealID   string `json:"deal_id,omitempty"`
	TxnID    string `json:"txn_id"`
	EntityID string `json:"entity_id"`
	Role     Role   `json:"role"`
}

// EntityBreakdown is the fully computed per-entity aggregate included in
// exports so that no caller re-derives it.
type EntityBreakdown struct {
	EntityID      string `json:"entity_id"`
	DisplayName   string `json:"display_name"`
	Role          Role   `json:"role"`
	TotalCents    int64  `json:"total_cents"`
	AbsTotalCents int64  `json:"abs_total_cents"`
	PercentBP     int64  `json:"percent_bp"` // share of non-transfer absolute volume
	TxnCount      int    `json:"txn_count"`
}

// Override is one manual reclassification of an entity. Append-only audit
// log; applying one produces a new analysis run and snapshot.
type Override struct {
	ID       string `json:"id"`
	DealID   string `json:"deal_id"`
	EntityID string `json:"entity_id"`

	OldRole Role `json:"old_role,omitempty"`
	NewRole Role `json:"new_role"`

	// WeightBP scores how disruptive the reclassification is: 0 for a
	// revert, 10000 when the entity crosses the revenue/non-revenue
	// boundary, 5000 otherwise. Feeds the confidence penalty.
	WeightBP int64 `json:"weight_bp"`

	Note      string    `json:"note,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}
