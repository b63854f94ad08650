package parsing

import (
	"encoding/csv"
	"strings"

	"github.com/dvloznov/parity/internal/domain"
)

var requiredHeaders = []string{"date", "amount", "description"}

var outflowDirections = map[string]bool{
	"out": true, "debit": true, "withdrawal": true, "outflow": true,
}

var inflowDirections = map[string]bool{
	"in": true, "credit": true, "inflow": true, "deposit": true,
}

// ParseCSV parses a bank transaction export deterministically. Required
// columns: date, amount, description. Optional: direction (flips the sign
// when it disagrees), account/account_id (defaults to "default").
// Returned rows are canonically sorted with fingerprints assigned.
// The second return value is the currency detection flag: an ISO code when
// one appeared in the amounts, "ambiguous" when only bare currency symbols
// were seen, "unknown" otherwise.
func ParseCSV(fileBytes []byte, documentID, dealCurrency string) ([]*domain.Transaction, string, error) {
	reader := csv.NewReader(strings.NewReader(string(fileBytes)))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, "", schemaErrorf("malformed CSV: %v", err)
	}
	if len(records) == 0 {
		return nil, "", schemaErrorf("CSV contains no rows")
	}
	return rowsFromRecords(records, documentID, dealCurrency, "CSV")
}

// rowsFromRecords walks a header-plus-rows table, the shape both the CSV
// and XLSX parsers reduce their input to. records[0] is the header row;
// format names the source in error messages.
func rowsFromRecords(records [][]string, documentID, dealCurrency, format string) ([]*domain.Transaction, string, error) {
	headerIdx := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		headerIdx[normalizeHeader(h)] = i
	}
	var missing []string
	for _, h := range requiredHeaders {
		if _, ok := headerIdx[h]; !ok {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return nil, "", schemaErrorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	field := func(record []string, name string) string {
		idx, ok := headerIdx[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	currencyDetection := "unknown"
	rows := make([]*domain.Transaction, 0, len(records)-1)

	for rowNo, record := range records[1:] {
		desc := field(record, "description")
		if strings.TrimSpace(desc) == "" {
			return nil, "", schemaErrorf("description missing at row %d", rowNo+1)
		}

		signedCents, detection, err := ParseAmountCents(field(record, "amount"), dealCurrency)
		if err != nil {
			return nil, "", err
		}
		switch detection {
		case "unknown":
		case "ambiguous":
			if currencyDetection == "unknown" {
				currencyDetection = "ambiguous"
			}
		default:
			currencyDetection = detection
		}

		if dir := strings.ToLower(strings.TrimSpace(field(record, "direction"))); dir != "" {
			switch {
			case outflowDirections[dir]:
				if signedCents > 0 {
					signedCents = -signedCents
				}
			case inflowDirections[dir]:
				if signedCents < 0 {
					signedCents = -signedCents
				}
			default:
				return nil, "", schemaErrorf("invalid direction value at row %d: %s", rowNo+1, dir)
			}
		}

		txnDate, err := ParseDate(field(record, "date"))
		if err != nil {
			return nil, "", err
		}

		accountID := strings.TrimSpace(field(record, "account_id"))
		if accountID == "" {
			accountID = strings.TrimSpace(field(record, "account"))
		}
		if accountID == "" {
			accountID = "default"
		}

		normalized := NormalizeDescriptor(desc)
		fp := Fingerprint(documentID, accountID, txnDate, signedCents, normalized)
		rows = append(rows, &domain.Transaction{
			// The fingerprint doubles as the row id so reparses and every
			// storage backend agree on identity.
			ID:                   fp,
			DocumentID:           documentID,
			TxnDate:              txnDate,
			SignedAmountCents:    signedCents,
			RawDescriptor:        desc,
			NormalizedDescriptor: normalized,
			AccountID:            accountID,
			Fingerprint:          fp,
		})
	}

	if len(rows) == 0 {
		return nil, "", schemaErrorf("%s contains no data rows", format)
	}

	SortRows(rows)
	return rows, currencyDetection, nil
}
