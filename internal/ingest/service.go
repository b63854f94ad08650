// Package ingest runs the asynchronous document parse path: fetch bytes,
// parse, persist rows, and drive the document through its status
// lifecycle. It is the handler side of the parse_document job queue.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/parity/internal/domain"
	"github.com/dvloznov/parity/internal/jobs"
	"github.com/dvloznov/parity/internal/logger"
	"github.com/dvloznov/parity/internal/parsing"
	"github.com/dvloznov/parity/internal/storage"
)

// FetchFunc downloads raw document bytes from a gs:// URI.
type FetchFunc func(ctx context.Context, uri string) ([]byte, error)

// Service processes parse_document jobs. Terminal parse failures mark the
// document failed and complete the job; transient failures (storage
// fetch, model transport) are returned to the queue for retry.
type Service struct {
	docs   storage.DocumentRepository
	txns   storage.TransactionRepository
	fetch  FetchFunc
	gemini *parsing.GeminiParser
}

// NewService creates an ingestion service. fetch may be nil when only
// inline documents are processed (local mode); gemini may be nil when PDF
// parsing is disabled.
func NewService(docs storage.DocumentRepository, txns storage.TransactionRepository, fetch FetchFunc, gemini *parsing.GeminiParser) *Service {
	return &Service{
		docs:   docs,
		txns:   txns,
		fetch:  fetch,
		gemini: gemini,
	}
}

// HandleJob adapts Service to the jobs.JobHandler signature.
func (s *Service) HandleJob(ctx context.Context, job jobs.Job) error {
	pj, ok := job.(*jobs.ParseDocumentJob)
	if !ok {
		return fmt.Errorf("unexpected job type %s", job.GetType())
	}
	return s.ProcessDocument(ctx, pj)
}

// ProcessDocument executes one parse job end to end. The document is
// already in processing (or moved there here, which keeps retries
// idempotent since the transition is monotonic).
func (s *Service) ProcessDocument(ctx context.Context, job *jobs.ParseDocumentJob) error {
	log := logger.FromContext(ctx).With().
		Str("document_id", job.DocumentID).
		Str("deal_id", job.DealID).
		Str("file_type", job.FileType).
		Logger()

	doc, err := s.docs.GetDocument(ctx, job.DocumentID)
	if err != nil {
		if domain.IsNotFound(err) {
			log.Error().Err(err).Msg("document missing, dropping job")
			return nil
		}
		return fmt.Errorf("load document: %w", err)
	}
	if doc.Status.Terminal() {
		log.Info().Str("status", string(doc.Status)).Msg("document already terminal, skipping")
		return nil
	}

	if err := s.docs.UpdateDocumentStatus(ctx, job.DocumentID, domain.DocumentStatusProcessing, "", ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	fileBytes, err := s.loadBytes(ctx, job)
	if err != nil {
		log.Warn().Err(err).Msg("fetch failed, will retry")
		return err
	}

	parser := parsing.ForFileType(job.FileType, s.gemini)
	if parser == nil {
		return s.markFailed(ctx, log, job.DocumentID, fmt.Sprintf("unsupported file type %q", job.FileType))
	}

	rows, detection, err := parser.Parse(ctx, fileBytes, job.DocumentID, job.DealCurrency)
	if err != nil {
		if terminalParseError(err) {
			return s.markFailed(ctx, log, job.DocumentID, err.Error())
		}
		log.Warn().Err(err).Msg("parse failed transiently, will retry")
		return err
	}

	// Parsers only know the document; deal attribution happens here.
	for _, row := range rows {
		row.DealID = job.DealID
	}

	if len(rows) > 0 {
		if err := s.txns.InsertTransactions(ctx, rows); err != nil {
			return fmt.Errorf("insert transactions: %w", err)
		}
	}

	// Only explicit ISO codes are recorded on the document; "unknown" and
	// "ambiguous" symbol sightings are not.
	currencyDetected := ""
	if detection != "unknown" && detection != "ambiguous" {
		currencyDetected = detection
	}

	if err := s.docs.UpdateDocumentStatus(ctx, job.DocumentID, domain.DocumentStatusCompleted, "", currencyDetected); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	log.Info().Int("rows", len(rows)).Str("currency_detected", currencyDetected).Msg("document parsed")
	return nil
}

// loadBytes resolves the document content from the job or object storage.
func (s *Service) loadBytes(ctx context.Context, job *jobs.ParseDocumentJob) ([]byte, error) {
	switch {
	case len(job.FileBytes) > 0:
		return job.FileBytes, nil
	case strings.HasPrefix(job.StorageURI, "inline://"):
		return nil, fmt.Errorf("inline document %s has no bytes attached", job.DocumentID)
	case strings.HasPrefix(job.StorageURI, "gs://"):
		if s.fetch == nil {
			return nil, fmt.Errorf("no storage fetcher configured for %s", job.StorageURI)
		}
		return s.fetch(ctx, job.StorageURI)
	default:
		return nil, fmt.Errorf("unsupported storage URI %q", job.StorageURI)
	}
}

// markFailed records a terminal parse failure on the document and
// completes the job without retry.
func (s *Service) markFailed(ctx context.Context, log zerolog.Logger, documentID, reason string) error {
	log.Error().Str("reason", reason).Msg("document parse failed terminally")
	if err := s.docs.UpdateDocumentStatus(ctx, documentID, domain.DocumentStatusFailed, reason, ""); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// terminalParseError reports whether a parse error can never succeed on
// retry. Schema violations, currency conflicts and explicit parse
// failures are terminal; everything else (transport, quota) is retried.
func terminalParseError(err error) bool {
	var se *parsing.SchemaError
	if errors.As(err, &se) {
		return true
	}
	var cm *parsing.CurrencyMismatchError
	if errors.As(err, &cm) {
		return true
	}
	return domain.IsParseFailure(err)
}
