package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// Transaction is one normalized bank transaction row produced by a parser.
// Amounts are signed integer cents: positive = inflow, negative = outflow.
// No floating point crosses this boundary. Rows are immutable once parsed.
type Transaction struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	DealID     string `json:"deal_id,omitempty"`

	TxnDate           civil.Date `json:"txn_date"`
	SignedAmountCents int64      `json:"signed_amount_cents"`

	RawDescriptor        string `json:"raw_descriptor"`
	NormalizedDescriptor string `json:"normalized_descriptor"`
	AccountID            string `json:"account_id"`

	// Fingerprint is the deterministic content id used in canonical
	// payloads: sha256(document|account|date|amount|descriptor).
	Fingerprint string `json:"fingerprint"`

	// IsTransfer is set by the transfer matcher when this row is one leg of
	// an internal account-to-account movement.
	IsTransfer bool `json:"is_transfer"`

	CreatedAt time.Time `json:"-"`
}

// AbsAmountCents returns the magnitude of the transaction amount.
func (t *Transaction) AbsAmountCents() int64 {
	if t.SignedAmountCents < 0 {
		return -t.SignedAmountCents
	}
	return t.SignedAmountCents
}

// TransferLink records one matched transfer pair: money leaving one account
// and arriving in another. Linked transactions are excluded from
// classification totals.
type TransferLink struct {
	DealID         string `json:"deal_id,omitempty"`
	TxnOutID       string `json:"txn_out_id"`
	TxnInID        string `json:"txn_in_id"`
	AbsAmountCents int64  `json:"abs_amount_cents"`
	RuleVersion    string `json:"match_rule_version"`
}
