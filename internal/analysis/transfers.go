package analysis

import (
	"sort"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/parity/internal/domain"
)

// MatchTransfers pairs internal account-to-account movements so they are
// excluded from classification totals. A pair must satisfy all of:
//   - same absolute amount
//   - opposite signs
//   - different account ids
//   - dates within cfg.TransferMaxDayGap calendar days
//   - exactly one candidate in each direction (ambiguous groups stay unmatched)
//
// Matched transactions get IsTransfer set in place. Links are returned
// sorted by (out, in) fingerprint for deterministic hashing.
func MatchTransfers(dealID string, txns []*domain.Transaction, cfg Config) []*domain.TransferLink {
	byAbs := make(map[int64][]*domain.Transaction)
	for _, tx := range txns {
		byAbs[tx.AbsAmountCents()] = append(byAbs[tx.AbsAmountCents()], tx)
	}

	var links []*domain.TransferLink
	for amt, group := range byAbs {
		var positives, negatives []*domain.Transaction
		for _, tx := range group {
			if tx.SignedAmountCents > 0 {
				positives = append(positives, tx)
			} else {
				negatives = append(negatives, tx)
			}
		}

		for _, pos := range positives {
			candidates := transferCandidates(pos, negatives, cfg.TransferMaxDayGap)
			if len(candidates) != 1 {
				continue
			}
			neg := candidates[0]
			// The pairing must be symmetric: pos must also be the only
			// candidate for neg.
			reverse := transferCandidates(neg, positives, cfg.TransferMaxDayGap)
			if len(reverse) != 1 || reverse[0] != pos {
				continue
			}

			pos.IsTransfer = true
			neg.IsTransfer = true
			links = append(links, &domain.TransferLink{
				DealID:         dealID,
				TxnOutID:       neg.Fingerprint,
				TxnInID:        pos.Fingerprint,
				AbsAmountCents: amt,
				RuleVersion:    TransferRuleVersion,
			})
		}
	}

	sort.Slice(links, func(i, j int) bool {
		if links[i].TxnOutID != links[j].TxnOutID {
			return links[i].TxnOutID < links[j].TxnOutID
		}
		return links[i].TxnInID < links[j].TxnInID
	})
	return links
}

// transferCandidates returns the counterparts of tx among pool that could
// form a transfer pair with it.
func transferCandidates(tx *domain.Transaction, pool []*domain.Transaction, maxDayGap int) []*domain.Transaction {
	var out []*domain.Transaction
	for _, other := range pool {
		if other.AccountID == tx.AccountID {
			continue
		}
		if dayDistance(tx.TxnDate, other.TxnDate) > maxDayGap {
			continue
		}
		out = append(out, other)
	}
	return out
}

func dayDistance(a, b civil.Date) int {
	d := a.DaysSince(b)
	if d < 0 {
		return -d
	}
	return d
}
