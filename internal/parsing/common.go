package parsing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/parity/internal/domain"
)

// SchemaError marks a document whose structure or content cannot be parsed.
// The ingestion service converts it into a terminal ParseFailure on the
// document.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return "invalid document schema: " + e.Reason
}

func schemaErrorf(format string, args ...interface{}) error {
	return &SchemaError{Reason: fmt.Sprintf(format, args...)}
}

// CurrencyMismatchError is raised when a file declares an ISO currency that
// conflicts with the deal's reporting currency.
type CurrencyMismatchError struct {
	Found    string
	Expected string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch: found %s, expected %s", e.Found, e.Expected)
}

var isoCurrencyRe = regexp.MustCompile(`\b[A-Z]{3}\b`)

// ambiguousDateRe matches numeric dates with two-digit years, which cannot
// be parsed deterministically.
var ambiguousDateRe = regexp.MustCompile(`^\d{1,2}[/-]\d{1,2}[/-]\d{2}$`)

// NormalizeDescriptor lowercases and whitespace-collapses a counterparty
// label. Entity resolution keys on the result.
func NormalizeDescriptor(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
}

// ParseDate parses a transaction date string deterministically. Two-digit
// years are rejected as ambiguous rather than guessed.
func ParseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, schemaErrorf("missing date value")
	}
	if ambiguousDateRe.MatchString(s) {
		return civil.Date{}, schemaErrorf("ambiguous date format: %s", s)
	}
	for _, layout := range dateLayouts {
		if d, err := civil.ParseDate(convertToISO(s, layout)); err == nil {
			return d, nil
		}
	}
	return civil.Date{}, schemaErrorf("unparseable date: %s", s)
}

// convertToISO rewrites a date string in the given layout to yyyy-mm-dd so
// civil.ParseDate can consume it. Returns the input unchanged when the
// layout does not apply.
func convertToISO(s, layout string) string {
	switch layout {
	case "2006-01-02":
		return s
	case "2006/01/02":
		if parts := strings.Split(s, "/"); len(parts) == 3 && len(parts[0]) == 4 {
			return parts[0] + "-" + pad2(parts[1]) + "-" + pad2(parts[2])
		}
	case "02-01-2006":
		if parts := strings.Split(s, "-"); len(parts) == 3 && len(parts[2]) == 4 {
			return parts[2] + "-" + pad2(parts[1]) + "-" + pad2(parts[0])
		}
	case "02/01/2006":
		if parts := strings.Split(s, "/"); len(parts) == 3 && len(parts[2]) == 4 {
			return parts[2] + "-" + pad2(parts[1]) + "-" + pad2(parts[0])
		}
	}
	return s
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// ParseAmountCents converts an amount string into signed integer cents using
// exact decimal arithmetic with banker's rounding. Returns the cents and a
// detection flag: the uppercase ISO code when the amount carried one,
// "ambiguous" when only a bare currency symbol was present, "unknown"
// otherwise. Zero-value amounts are rejected.
func ParseAmountCents(raw, dealCurrency string) (int64, string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, "", schemaErrorf("amount is empty")
	}

	detection := "unknown"
	if strings.ContainsAny(s, "$€£") {
		detection = "ambiguous"
	}

	if m := isoCurrencyRe.FindString(s); m != "" {
		if dealCurrency != "" && !strings.EqualFold(m, dealCurrency) {
			return 0, "", &CurrencyMismatchError{Found: m, Expected: strings.ToUpper(dealCurrency)}
		}
		detection = strings.ToUpper(m)
		s = strings.Replace(s, m, "", 1)
	}

	cleaned := strings.NewReplacer(",", "", " ", "", "$", "", "€", "", "£", "").Replace(s)
	if cleaned == "" {
		return 0, "", schemaErrorf("amount missing after cleaning: %q", raw)
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, "", schemaErrorf("non-numeric amount: %q", raw)
	}

	cents := value.Mul(decimal.NewFromInt(100)).RoundBank(0).IntPart()
	if cents == 0 {
		return 0, "", schemaErrorf("zero-value transactions are not allowed")
	}
	return cents, detection, nil
}

// Fingerprint computes the deterministic content id of a transaction row.
// It is stable across re-parses of the same document.
func Fingerprint(documentID, accountID string, date civil.Date, signedCents int64, normalizedDescriptor string) string {
	basis := strings.Join([]string{
		documentID,
		accountID,
		date.String(),
		strconv.FormatInt(signedCents, 10),
		normalizedDescriptor,
	}, "|")
	sum := sha256.Sum256([]byte(basis))
	return hex.EncodeToString(sum[:])
}

// SortRows orders transactions canonically: date, account, amount,
// descriptor, fingerprint. Export hashing depends on this order being
// independent of parse order.
func SortRows(rows []*domain.Transaction) {
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
