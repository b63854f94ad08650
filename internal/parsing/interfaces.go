package parsing

import (
	"context"

	"github.com/dvloznov/parity/internal/domain"
)

// StatementParser turns raw document bytes into normalized transaction rows.
// Implementations: CSVParser and XLSXParser (deterministic, in-process) and
// GeminiParser for PDF statements. The analysis core treats any of them as
// the external-parser collaborator and never looks inside the bytes itself.
type StatementParser interface {
	// Parse returns canonically sorted rows with fingerprints assigned,
	// plus the currency detection flag.
	Parse(ctx context.Context, fileBytes []byte, documentID, dealCurrency string) ([]*domain.Transaction, string, error)
}

// CSVParser adapts ParseCSV to the StatementParser interface.
type CSVParser struct{}

func (CSVParser) Parse(_ context.Context, fileBytes []byte, documentID, dealCurrency string) ([]*domain.Transaction, string, error) {
	return ParseCSV(fileBytes, documentID, dealCurrency)
}

// XLSXParser adapts ParseXLSX to the StatementParser interface.
type XLSXParser struct{}

func (XLSXParser) Parse(_ context.Context, fileBytes []byte, documentID, dealCurrency string) ([]*domain.Transaction, string, error) {
	return ParseXLSX(fileBytes, documentID, dealCurrency)
}

// ForFileType selects a parser for a document file type. Returns nil when
// the type is unsupported.
func ForFileType(fileType string, gemini *GeminiParser) StatementParser {
	switch fileType {
	case "csv":
		return CSVParser{}
	case "xlsx":
		return XLSXParser{}
	case "pdf":
		if gemini != nil {
			return gemini
		}
	}
	return nil
}
