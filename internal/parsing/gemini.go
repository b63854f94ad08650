package parsing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/parity/internal/domain"
)

// DefaultModelName is the Gemini model used for PDF statement parsing.
const DefaultModelName = "gemini-2.5-flash"

// GeminiParser extracts transactions from PDF bank statements via Gemini.
// The model does row extraction only; all normalization (amounts, dates,
// fingerprints, ordering) goes through the same deterministic helpers as the
// CSV path, so downstream hashing never depends on model output formatting.
type GeminiParser struct {
	model string
}

// NewGeminiParser creates a Gemini-backed statement parser. An empty model
// name selects DefaultModelName.
func NewGeminiParser(model string) *GeminiParser {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiParser{model: model}
}

type geminiTxn struct {
	Date        string      `json:"date"`
	Description string      `json:"description"`
	Amount      json.Number `json:"amount"`
	AccountID   string      `json:"account_id"`
}

// Parse implements StatementParser.
func (p *GeminiParser) Parse(ctx context.Context, fileBytes []byte, documentID, dealCurrency string) ([]*domain.Transaction, string, error) {
	prompt :=
		"You are a financial statement parser for PDF bank statements.\n\n" +
			"Task:\n" +
			"- Extract ALL transactions in the attached statement.\n" +
			"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
			"- Output a JSON array of objects.\n\n" +
			"Each object must have these fields:\n" +
			"- \"date\": string, ISO format \"YYYY-MM-DD\"\n" +
			"- \"description\": string, the counterparty or narrative text\n" +
			"- \"amount\": number (positive for money IN, negative for money OUT)\n" +
			"- \"account_id\": string, the account the row belongs to, or \"default\"\n\n" +
			"Rules:\n" +
			"- If the statement has separate \"paid out\" / \"paid in\" columns, convert to a single signed \"amount\".\n" +
			"- Do NOT classify, categorize or aggregate rows.\n" +
			"- If the PDF contains multiple accounts, attribute rows correctly.\n\n" +
			"Return ONLY valid raw JSON.\n" +
			"Do NOT wrap the response in code fences.\n" +
			"Output must begin with \"[\" and end with \"]\".\n"

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, "", fmt.Errorf("gemini parse: create client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: "application/pdf",
						Data:     fileBytes,
					},
				},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return nil, "", fmt.Errorf("gemini parse: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, "", schemaErrorf("empty response from model")
	}

	var parsed []geminiTxn
	if err := json.Unmarshal([]byte(cleanModelJSON(rawText)), &parsed); err != nil {
		return nil, "", schemaErrorf("model returned invalid JSON: %v", err)
	}

	return normalizeModelRows(parsed, documentID, dealCurrency)
}

// normalizeModelRows funnels model output through the deterministic
// normalization path shared with the CSV parser.
func normalizeModelRows(parsed []geminiTxn, documentID, dealCurrency string) ([]*domain.Transaction, string, error) {
	if len(parsed) == 0 {
		return nil, "", schemaErrorf("model returned no transactions")
	}

	currencyDetection := "unknown"
	rows := make([]*domain.Transaction, 0, len(parsed))
	for i, rec := range parsed {
		if strings.TrimSpace(rec.Description) == "" {
			return nil, "", schemaErrorf("description missing at model row %d", i+1)
		}
		signedCents, detection, err := ParseAmountCents(rec.Amount.String(), dealCurrency)
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
		txnDate, err := ParseDate(rec.Date)
		if err != nil {
			return nil, "", err
		}
		accountID := strings.TrimSpace(rec.AccountID)
		if accountID == "" {
			accountID = "default"
		}
		normalized := NormalizeDescriptor(rec.Description)
		fp := Fingerprint(documentID, accountID, txnDate, signedCents, normalized)
		rows = append(rows, &domain.Transaction{
			ID:                   fp,
			DocumentID:           documentID,
			TxnDate:              txnDate,
			SignedAmountCents:    signedCents,
			RawDescriptor:        rec.Description,
			NormalizedDescriptor: normalized,
			AccountID:            accountID,
			Fingerprint:          fp,
		})
	}

	SortRows(rows)
	return rows, currencyDetection, nil
}

// cleanModelJSON strips Markdown fences and surrounding prose when the model
// ignores the raw-JSON instruction.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if start := strings.Index(s, "["); start > 0 {
		if end := strings.LastIndex(s, "]"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}
