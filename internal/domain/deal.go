package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// Deal represents one fund deal under analysis. A deal owns documents,
// transactions, entities and analysis runs. Accrual fields are optional and
// may only be set at creation time; reconciliation is skipped when they are
// absent.
type Deal struct {
	ID       string `json:"id"`
	Currency string `json:"currency"` // ISO 4217, uppercased
	Name     string `json:"name,omitempty"`

	// CreatedBy is an opaque caller identity supplied by the collaborator.
	// The core never assumes a fixed id.
	CreatedBy string `json:"created_by"`

	// Accrual figures, self-reported by the fund. All-or-nothing: either
	// revenue and both period bounds are set, or reconciliation is NOT_RUN.
	AccrualRevenueCents *int64      `json:"accrual_revenue_cents,omitempty"`
	AccrualPeriodStart  *civil.Date `json:"accrual_period_start,omitempty"`
	AccrualPeriodEnd    *civil.Date `json:"accrual_period_end,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// HasAccrual reports whether the deal carries a complete accrual declaration.
func (d *Deal) HasAccrual() bool {
	return d.AccrualRevenueCents != nil && d.AccrualPeriodStart != nil && d.AccrualPeriodEnd != nil
}
