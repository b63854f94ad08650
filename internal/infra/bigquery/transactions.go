package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/parity/internal/domain"
)

type TransactionRow struct {
	TxnID      string `bigquery:"txn_id"` // REQUIRED, content fingerprint
	DocumentID string `bigquery:"document_id"`
	DealID     string `bigquery:"deal_id"` // NULLABLE

	TxnDate           civil.Date `bigquery:"txn_date"`            // REQUIRED
	SignedAmountCents int64      `bigquery:"signed_amount_cents"` // REQUIRED

	RawDescriptor        string `bigquery:"raw_descriptor"`
	NormalizedDescriptor string `bigquery:"normalized_descriptor"`
	AccountID            string `bigquery:"account_id"`

	IsTransfer bool `bigquery:"is_transfer"`

	CreatedAt time.Time `bigquery:"created_at"` // REQUIRED
}

func transactionRowFromDomain(t *domain.Transaction) *TransactionRow {
	return &TransactionRow{
		TxnID:                t.Fingerprint,
		DocumentID:           t.DocumentID,
		DealID:               t.DealID,
		TxnDate:              t.TxnDate,
		SignedAmountCents:    t.SignedAmountCents,
		RawDescriptor:        t.RawDescriptor,
		NormalizedDescriptor: t.NormalizedDescriptor,
		AccountID:            t.AccountID,
		IsTransfer:           t.IsTransfer,
		CreatedAt:            t.CreatedAt,
	}
}

func (r *TransactionRow) toDomain() *domain.Transaction {
	return &domain.Transaction{
		ID:                   r.TxnID,
		DocumentID:           r.DocumentID,
		DealID:               r.DealID,
		TxnDate:              r.TxnDate,
		SignedAmountCents:    r.SignedAmountCents,
		RawDescriptor:        r.RawDescriptor,
		NormalizedDescriptor: r.NormalizedDescriptor,
		AccountID:            r.AccountID,
		Fingerprint:          r.TxnID,
		IsTransfer:           r.IsTransfer,
		CreatedAt:            r.CreatedAt,
	}
}

const transactionColumns = `
			txn_id,
			document_id,
			deal_id,
			txn_date,
			signed_amount_cents,
			raw_descriptor,
			normalized_descriptor,
			account_id,
			is_transfer,
			created_at`

// canonicalTxnOrder matches the order the parsers emit: it keeps list
// results stable so hashing downstream never depends on storage order.
const canonicalTxnOrder = `ORDER BY txn_date, account_id, signed_amount_cents, normalized_descriptor, txn_id`

// InsertTransactions streams a batch of transaction rows into
// parity.transactions.
func (s *Store) InsertTransactions(ctx context.Context, txns []*domain.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	rows := make([]*TransactionRow, len(txns))
	for i, t := range txns {
		rows[i] = transactionRowFromDomain(t)
	}
	if err := s.inserter(transactionsTable).Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}
	return nil
}

// ListTransactionsByDocument retrieves a document's rows in canonical order.
func (s *Store) ListTransactionsByDocument(ctx context.Context, documentID string) ([]*domain.Transaction, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE document_id = @document_id
		%s
	`, transactionColumns, s.tableRef(transactionsTable), canonicalTxnOrder)

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "document_id", Value: documentID},
	}

	return s.readTransactions(ctx, q, "ListTransactionsByDocument")
}

// ListTransactionsByDeal retrieves every row across a deal's documents in
// canonical order.
func (s *Store) ListTransactionsByDeal(ctx context.Context, dealID string) ([]*domain.Transaction, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE deal_id = @deal_id
		%s
	`, transactionColumns, s.tableRef(transactionsTable), canonicalTxnOrder)

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "deal_id", Value: dealID},
	}

	return s.readTransactions(ctx, q, "ListTransactionsByDeal")
}

func (s *Store) readTransactions(ctx context.Context, q *bigquery.Query, op string) ([]*domain.Transaction, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: reading query: %w", op, err)
	}

	var txns []*domain.Transaction
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: iterating: %w", op, err)
		}
		txns = append(txns, row.toDomain())
	}

	return txns, nil
}
