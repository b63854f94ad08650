package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/parity/internal/domain"
)

type DocumentRow struct {
	DocumentID string `bigquery:"document_id"` // REQUIRED
	DealID     string `bigquery:"deal_id"`     // NULLABLE

	Status string `bigquery:"status"` // REQUIRED

	FileName   string `bigquery:"file_name"`   // REQUIRED
	FileType   string `bigquery:"file_type"`   // REQUIRED
	StorageURI string `bigquery:"storage_uri"` // REQUIRED

	CurrencyDetected string `bigquery:"currency_detected"` // NULLABLE
	ErrorMessage     string `bigquery:"error_message"`     // NULLABLE

	CreatedBy string    `bigquery:"created_by"` // REQUIRED
	CreatedAt time.Time `bigquery:"created_at"` // REQUIRED
}

func documentRowFromDomain(d *domain.Document) *DocumentRow {
	return &DocumentRow{
		DocumentID:       d.ID,
		DealID:           d.DealID,
		Status:           string(d.Status),
		FileName:         d.FileName,
		FileType:         d.FileType,
		StorageURI:       d.StorageURI,
		CurrencyDetected: d.CurrencyDetected,
		ErrorMessage:     d.ErrorMessage,
		CreatedBy:        d.CreatedBy,
		CreatedAt:        d.CreatedAt,
	}
}

func (r *DocumentRow) toDomain() *domain.Document {
	return &domain.Document{
		ID:               r.DocumentID,
		DealID:           r.DealID,
		Status:           domain.DocumentStatus(r.Status),
		FileName:         r.FileName,
		FileType:         r.FileType,
		StorageURI:       r.StorageURI,
		CurrencyDetected: r.CurrencyDetected,
		ErrorMessage:     r.ErrorMessage,
		CreatedBy:        r.CreatedBy,
		CreatedAt:        r.CreatedAt,
	}
}

const documentColumns = `
			document_id,
			deal_id,
			status,
			file_name,
			file_type,
			storage_uri,
			currency_detected,
			error_message,
			created_by,
			created_at`

// CreateDocument inserts a single document row into parity.documents.
func (s *Store) CreateDocument(ctx context.Context, doc *domain.Document) error {
	if err := s.inserter(documentsTable).Put(ctx, documentRowFromDomain(doc)); err != nil {
		return fmt.Errorf("CreateDocument: inserting row: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE document_id = @document_id
		LIMIT 1
	`, documentColumns, s.tableRef(documentsTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "document_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetDocument: reading query: %w", err)
	}

	var row DocumentRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, domain.NewNotFoundError("document", id)
	}
	if err != nil {
		return nil, fmt.Errorf("GetDocument: reading row: %w", err)
	}

	return row.toDomain(), nil
}

// ListDocumentsByDeal retrieves a deal's documents, newest first.
func (s *Store) ListDocumentsByDeal(ctx context.Context, dealID string) ([]*domain.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE deal_id = @deal_id
		ORDER BY created_at DESC, document_id
	`, documentColumns, s.tableRef(documentsTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "deal_id", Value: dealID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListDocumentsByDeal: reading query: %w", err)
	}

	var docs []*domain.Document
	for {
		var row DocumentRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListDocumentsByDeal: iterating: %w", err)
		}
		docs = append(docs, row.toDomain())
	}

	return docs, nil
}

// UpdateDocumentStatus transitions a document's parse status. The WHERE
// clause enforces monotonicity: rows already in a terminal state never
// match, so the update silently no-ops, same as the in-memory store.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, errorMessage, currencyDetected string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET
			status = @status,
			error_message = IF(@error_message = '', error_message, @error_message),
			currency_detected = IF(@currency_detected = '', currency_detected, @currency_detected)
		WHERE document_id = @document_id
		  AND status NOT IN ('completed', 'failed')
	`, s.tableRef(documentsTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "document_id", Value: id},
		{Name: "status", Value: string(status)},
		{Name: "error_message", Value: errorMessage},
		{Name: "currency_detected", Value: currencyDetected},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("UpdateDocumentStatus: running update: %w", err)
	}
	jobStatus, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("UpdateDocumentStatus: waiting for update: %w", err)
	}
	if err := jobStatus.Err(); err != nil {
		return fmt.Errorf("UpdateDocumentStatus: update failed: %w", err)
	}

	return nil
}
