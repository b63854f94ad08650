package domain

import "time"

// DocumentStatus is the parse state of an uploaded document. Transitions are
// monotonic: pending -> processing -> completed|failed. Terminal states never
// regress.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentStatusCompleted || s == DocumentStatusFailed
}

// Document is one uploaded source file (bank export, statement). Parsing is
// performed by an external collaborator; the core only records progress.
type Document struct {
	ID     string `json:"id"`
	DealID string `json:"deal_id,omitempty"` // empty for standalone documents

	Status DocumentStatus `json:"status"`

	FileName string `json:"file_name"`
	FileType string `json:"file_type"` // "csv", "xlsx", "pdf"

	// StorageURI locates the raw bytes: "gs://bucket/object" when a GCS
	// bucket is configured, "inline://<filename>" otherwise.
	StorageURI string `json:"storage_uri"`

	// CurrencyDetected is set when the parser saw an explicit currency in
	// the file ("ambiguous" symbols are not recorded).
	CurrencyDetected string `json:"currency_detected,omitempty"`

	// ErrorMessage holds the parser failure reason for failed documents.
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}
