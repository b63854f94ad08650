package parsing

import (
	"errors"
	"testing"

	"cloud.google.com/go/civil"
)

func TestNormalizeDescriptor(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ACME Ltd", "acme ltd"},
		{"  POS   Sale   ACME  ", "pos sale acme"},
		{"Transfer\tto\nSavings", "transfer to savings"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeDescriptor(tt.in); got != tt.want {
			t.Errorf("NormalizeDescriptor(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2025-01-05", "2025-01-05", false},
		{"2025/01/05", "2025-01-05", false},
		{"2025/1/5", "2025-01-05", false},
		{"05-01-2025", "2025-01-05", false},
		{"05/01/2025", "2025-01-05", false},
		{"5/1/2025", "2025-01-05", false},
		{"05/01/25", "", true}, // two-digit year is ambiguous
		{"01-05-25", "", true},
		{"not a date", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDate(%q) = %v, want error", tt.in, got)
				}
				var se *SchemaError
				if !errors.As(err, &se) {
					t.Errorf("error type = %T, want *SchemaError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDate(%q): %v", tt.in, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAmountCents(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		dealCurrency  string
		wantCents     int64
		wantDetection string
		wantErr       bool
	}{
		{"plain", "100.50", "GBP", 10050, "unknown", false},
		{"negative", "-42.10", "GBP", -4210, "unknown", false},
		{"thousands separator", "1,234.56", "GBP", 123456, "unknown", false},
		{"pound symbol", "£99.99", "GBP", 9999, "ambiguous", false},
		{"matching iso code", "GBP 250.00", "GBP", 25000, "GBP", false},
		{"iso without deal currency", "USD 10.00", "", 1000, "USD", false},
		{"three decimals banker rounds", "10.005", "GBP", 1000, "unknown", false},
		{"two and a half cents", "10.015", "GBP", 1002, "unknown", false},
		{"zero rejected", "0.00", "GBP", 0, "", true},
		{"empty rejected", "", "GBP", 0, "", true},
		{"garbage rejected", "ten pounds", "GBP", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cents, detection, err := ParseAmountCents(tt.raw, tt.dealCurrency)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAmountCents(%q) = %d, want error", tt.raw, cents)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmountCents(%q): %v", tt.raw, err)
			}
			if cents != tt.wantCents {
				t.Errorf("cents = %d, want %d", cents, tt.wantCents)
			}
			if detection != tt.wantDetection {
				t.Errorf("detection = %q, want %q", detection, tt.wantDetection)
			}
		})
	}
}

func TestParseAmountCentsCurrencyMismatch(t *testing.T) {
	_, _, err := ParseAmountCents("USD 100.00", "GBP")
	var cme *CurrencyMismatchError
	if !errors.As(err, &cme) {
		t.Fatalf("error = %v, want *CurrencyMismatchError", err)
	}
	if cme.Found != "USD" || cme.Expected != "GBP" {
		t.Errorf("mismatch = %+v", cme)
	}
}

func TestFingerprintStable(t *testing.T) {
	d := civil.Date{Year: 2025, Month: 1, Day: 5}

	a := Fingerprint("doc-1", "acct-1", d, 10050, "acme ltd")
	b := Fingerprint("doc-1", "acct-1", d, 10050, "acme ltd")
	if a != b {
		t.Error("identical rows must fingerprint identically")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64", len(a))
	}

	variants := []string{
		Fingerprint("doc-2", "acct-1", d, 10050, "acme ltd"),
		Fingerprint("doc-1", "acct-2", d, 10050, "acme ltd"),
		Fingerprint("doc-1", "acct-1", d, 10051, "acme ltd"),
		Fingerprint("doc-1", "acct-1", d, 10050, "beta co"),
	}
	for i, v := range variants {
		if v == a {
			t.Errorf("variant %d collided with base fingerprint", i)
		}
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"raw json", `[{"a":1}]`, `[{"a":1}]`},
		{"fenced", "```json\n[{\"a\":1}]\n```", `[{"a":1}]`},
		{"bare fence", "```\n[{\"a\":1}]\n```", `[{"a":1}]`},
		{"surrounding prose", "Here you go:\n[{\"a\":1}]\nDone.", `[{"a":1}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanModelJSON(tt.in); got != tt.want {
				t.Errorf("cleanModelJSON = %q, want %q", got, tt.want)
			}
		})
	}
}
