package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/parity/internal/domain"
)

type TransferLinkRow struct {
	DealID         string `bigquery:"deal_id"`    // REQUIRED
	TxnOutID       string `bigquery:"txn_out_id"` // REQUIRED
	TxnInID        string `bigquery:"txn_in_id"`  // REQUIRED
	AbsAmountCents int64  `bigquery:"abs_amount_cents"`
	RuleVersion    string `bigquery:"match_rule_version"`
}

// ReplaceTransferLinks rewrites the deal's matched transfer pairs.
func (s *Store) ReplaceTransferLinks(ctx context.Context, dealID string, links []*domain.TransferLink) error {
	if err := s.deleteByDeal(ctx, transferLinksTable, dealID, "ReplaceTransferLinks"); err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}

	rows := make([]*TransferLinkRow, len(links))
	for i, l := range links {
		rows[i] = &TransferLinkRow{
			DealID:         dealID,
			TxnOutID:       l.TxnOutID,
			TxnInID:        l.TxnInID,
			AbsAmountCents: l.AbsAmountCents,
			RuleVersion:    l.RuleVersion,
		}
	}
	if err := s.inserter(transferLinksTable).Put(ctx, rows); err != nil {
		return fmt.Errorf("ReplaceTransferLinks: inserting rows: %w", err)
	}

	return nil
}

// ListTransferLinksByDeal retrieves the deal's transfer links ordered by
// the out leg then the in leg.
func (s *Store) ListTransferLinksByDeal(ctx context.Context, dealID string) ([]*domain.TransferLink, error) {
	query := fmt.Sprintf(`
		SELECT
			deal_id,
			txn_out_id,
			txn_in_id,
			abs_amount_cents,
			match_rule_version
		FROM %s
		WHERE deal_id = @deal_id
		ORDER BY txn_out_id, txn_in_id
	`, s.tableRef(transferLinksTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "deal_id", Value: dealID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransferLinksByDeal: reading query: %w", err)
	}

	var links []*domain.TransferLink
	for {
		var row TransferLinkRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransferLinksByDeal: iterating: %w", err)
		}
		links = append(links, &domain.TransferLink{
			DealID:         row.DealID,
			TxnOutID:       row.TxnOutID,
			TxnInID:        row.TxnInID,
			AbsAmountCents: row.AbsAmountCents,
			RuleVersion:    row.RuleVersion,
		})
	}

	return links, nil
}
