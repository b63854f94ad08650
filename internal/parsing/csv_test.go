package parsing

import (
	"errors"
	"strings"
	"testing"
)

func TestParseCSVBasic(t *testing.T) {
	csvData := strings.Join([]string{
		"date,amount,description,account",
		"2025-01-10,-30.00,Salary J Otieno,main",
		"2025-01-05,120.50,POS Sale ACME,main",
	}, "\n")

	rows, detection, err := ParseCSV([]byte(csvData), "doc-1", "GBP")
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if detection != "unknown" {
		t.Errorf("detection = %q, want unknown", detection)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	// Canonical order: date ascending, so the Jan 5 row comes first.
	first := rows[0]
	if first.TxnDate.String() != "2025-01-05" {
		t.Errorf("first row date = %s, want 2025-01-05", first.TxnDate)
	}
	if first.SignedAmountCents != 12050 {
		t.Errorf("cents = %d, want 12050", first.SignedAmountCents)
	}
	if first.NormalizedDescriptor != "pos sale acme" {
		t.Errorf("normalized = %q", first.NormalizedDescriptor)
	}
	if first.RawDescriptor != "POS Sale ACME" {
		t.Errorf("raw = %q", first.RawDescriptor)
	}
	if first.AccountID != "main" {
		t.Errorf("account = %q, want main", first.AccountID)
	}
	if first.DocumentID != "doc-1" {
		t.Errorf("document = %q, want doc-1", first.DocumentID)
	}
	if len(first.Fingerprint) != 64 {
		t.Errorf("fingerprint = %q", first.Fingerprint)
	}
	// Row identity is the fingerprint everywhere: hashes stay stable no
	// matter which backend round-trips the row.
	for i, row := range rows {
		if row.ID != row.Fingerprint {
			t.Errorf("row %d: id = %q, want fingerprint %q", i, row.ID, row.Fingerprint)
		}
	}
}

func TestParseCSVDirectionFlipsSign(t *testing.T) {
	csvData := strings.Join([]string{
		"date,amount,description,direction",
		"2025-01-05,100.00,Supplier Invoice,debit",
		"2025-01-06,50.00,Client Receipt,credit",
		"2025-01-07,-25.00,Refund Issued,in",
	}, "\n")

	rows, _, err := ParseCSV([]byte(csvData), "doc-1", "GBP")
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}

	byDesc := map[string]int64{}
	for _, r := range rows {
		byDesc[r.NormalizedDescriptor] = r.SignedAmountCents
	}
	if byDesc["supplier invoice"] != -10000 {
		t.Errorf("debit row = %d, want -10000", byDesc["supplier invoice"])
	}
	if byDesc["client receipt"] != 5000 {
		t.Errorf("credit row = %d, want 5000", byDesc["client receipt"])
	}
	if byDesc["refund issued"] != 2500 {
		t.Errorf("inflow row = %d, want 2500", byDesc["refund issued"])
	}
}

func TestParseCSVInvalidDirection(t *testing.T) {
	csvData := "date,amount,description,direction\n2025-01-05,100.00,X,sideways"
	_, _, err := ParseCSV([]byte(csvData), "doc-1", "GBP")
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *SchemaError", err)
	}
}

func TestParseCSVMissingColumns(t *testing.T) {
	csvData := "date,description\n2025-01-05,No Amount Here"
	_, _, err := ParseCSV([]byte(csvData), "doc-1", "GBP")
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *SchemaError", err)
	}
	if !strings.Contains(se.Reason, "amount") {
		t.Errorf("reason = %q, want missing column named", se.Reason)
	}
}

func TestParseCSVEmptyDescription(t *testing.T) {
	csvData := "date,amount,description\n2025-01-05,100.00,  "
	if _, _, err := ParseCSV([]byte(csvData), "doc-1", "GBP"); err == nil {
		t.Fatal("expected error for blank description")
	}
}

func TestParseCSVNoDataRows(t *testing.T) {
	if _, _, err := ParseCSV([]byte("date,amount,description"), "doc-1", "GBP"); err == nil {
		t.Fatal("expected error for header-only file")
	}
	if _, _, err := ParseCSV([]byte(""), "doc-1", "GBP"); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestParseCSVCurrencyMismatch(t *testing.T) {
	csvData := "date,amount,description\n2025-01-05,USD 100.00,Wire In"
	_, _, err := ParseCSV([]byte(csvData), "doc-1", "GBP")
	var cme *CurrencyMismatchError
	if !errors.As(err, &cme) {
		t.Fatalf("error = %v, want *CurrencyMismatchError", err)
	}
}

func TestParseCSVCurrencyDetection(t *testing.T) {
	t.Run("symbol only", func(t *testing.T) {
		csvData := "date,amount,description\n2025-01-05,£100.00,Sale"
		_, detection, err := ParseCSV([]byte(csvData), "doc-1", "GBP")
		if err != nil {
			t.Fatalf("ParseCSV: %v", err)
		}
		if detection != "ambiguous" {
			t.Errorf("detection = %q, want ambiguous", detection)
		}
	})

	t.Run("iso code wins over symbol", func(t *testing.T) {
		csvData := strings.Join([]string{
			"date,amount,description",
			"2025-01-05,£100.00,Sale",
			"2025-01-06,GBP 50.00,Sale Two",
		}, "\n")
		_, detection, err := ParseCSV([]byte(csvData), "doc-1", "GBP")
		if err != nil {
			t.Fatalf("ParseCSV: %v", err)
		}
		if detection != "GBP" {
			t.Errorf("detection = %q, want GBP", detection)
		}
	})
}

func TestParseCSVDefaultAccount(t *testing.T) {
	csvData := "date,amount,description\n2025-01-05,100.00,Sale"
	rows, _, err := ParseCSV([]byte(csvData), "doc-1", "GBP")
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if rows[0].AccountID != "default" {
		t.Errorf("account = %q, want default", rows[0].AccountID)
	}
}

func TestParseCSVReparseIsIdentical(t *testing.T) {
	csvData := strings.Join([]string{
		"date,amount,description",
		"2025-01-10,-30.00,Salary",
		"2025-01-05,120.50,Sale",
	}, "\n")

	a, _, err := ParseCSV([]byte(csvData), "doc-1", "GBP")
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	b, _, err := ParseCSV([]byte(csvData), "doc-1", "GBP")
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}

	for i := range a {
		if a[i].Fingerprint != b[i].Fingerprint {
			t.Errorf("row %d fingerprint differs between parses", i)
		}
	}
}

func TestForFileType(t *testing.T) {
	gemini := NewGeminiParser("")

	if p := ForFileType("csv", gemini); p == nil {
		t.Error("csv must resolve to a parser")
	}
	if p := ForFileType("pdf", gemini); p != gemini {
		t.Error("pdf must resolve to the gemini parser")
	}
	if p := ForFileType("pdf", nil); p != nil {
		t.Error("pdf without a gemini parser must resolve to nil")
	}
	if p := ForFileType("xlsx", gemini); p == nil {
		t.Error("xlsx must resolve to a parser")
	}
	if p := ForFileType("ofx", gemini); p != nil {
		t.Error("unknown types must resolve to nil")
	}
}

func TestNormalizeModelRows(t *testing.T) {
	parsed := []geminiTxn{
		{Date: "2025-01-10", Description: "Salary J Otieno", Amount: "-300.00", AccountID: ""},
		{Date: "2025-01-05", Description: "POS Sale ACME", Amount: "1205.50", AccountID: "main"},
	}

	rows, detection, err := normalizeModelRows(parsed, "doc-1", "GBP")
	if err != nil {
		t.Fatalf("normalizeModelRows: %v", err)
	}
	if detection != "unknown" {
		t.Errorf("detection = %q, want unknown", detection)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].TxnDate.String() != "2025-01-05" {
		t.Errorf("first row date = %s, want canonical order", rows[0].TxnDate)
	}
	if rows[0].ID != rows[0].Fingerprint {
		t.Errorf("id = %q, want fingerprint %q", rows[0].ID, rows[0].Fingerprint)
	}
	if rows[1].AccountID != "default" {
		t.Errorf("blank account = %q, want default", rows[1].AccountID)
	}

	if _, _, err := normalizeModelRows(nil, "doc-1", "GBP"); err == nil {
		t.Error("expected error for empty model output")
	}
}
