// Package service is the deal analysis facade: deal creation, document
// ingestion, snapshot export and manual overrides. Handlers and CLIs talk
// to this package only; it owns validation, per-deal serialization and the
// wiring between storage, the job queue and the analysis pipeline.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dvloznov/parity/internal/analysis"
	"github.com/dvloznov/parity/internal/domain"
	"github.com/dvloznov/parity/internal/gcs"
	"github.com/dvloznov/parity/internal/jobs"
	"github.com/dvloznov/parity/internal/logger"
	"github.com/dvloznov/parity/internal/storage"
)

// Service implements the deal analysis operations over pluggable storage
// and queue backends.
type Service struct {
	repos    storage.Repositories
	queue    jobs.Publisher
	store    gcs.StorageService
	bucket   string
	cfg      analysis.Config
	locks    *dealLocks
	validate *validator.Validate
}

// New creates the service. store and bucket are optional: when either is
// absent, documents are carried inline through the job queue instead of
// through object storage.
func New(repos storage.Repositories, queue jobs.Publisher, store gcs.StorageService, bucket string, cfg analysis.Config) *Service {
	return &Service{
		repos:    repos,
		queue:    queue,
		store:    store,
		bucket:   bucket,
		cfg:      cfg,
		locks:    newDealLocks(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// CreateDealInput is the payload for CreateDeal. Accrual fields are
// all-or-nothing and immutable after creation.
type CreateDealInput struct {
	Currency  string `validate:"required,len=3,alpha"`
	Name      string `validate:"max=200"`
	CreatedBy string `validate:"required"`

	AccrualRevenueCents *int64
	AccrualPeriodStart  *civil.Date
	AccrualPeriodEnd    *civil.Date
}

// CreateDeal registers a new deal. The accrual declaration, when present,
// must be complete and internally consistent; reconciliation for deals
// without one reports NOT_RUN forever.
func (s *Service) CreateDeal(ctx context.Context, in CreateDealInput) (*domain.Deal, error) {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if err := s.validate.Struct(in); err != nil {
		return nil, domain.NewValidationError("deal", err.Error())
	}

	hasAny := in.AccrualRevenueCents != nil || in.AccrualPeriodStart != nil || in.AccrualPeriodEnd != nil
	hasAll := in.AccrualRevenueCents != nil && in.AccrualPeriodStart != nil && in.AccrualPeriodEnd != nil
	if hasAny && !hasAll {
		return nil, domain.NewValidationError("accrual", "accrual revenue and both period bounds must be provided together")
	}
	if hasAll {
		if *in.AccrualRevenueCents <= 0 {
			return nil, domain.NewValidationError("accrual_revenue_cents", "must be positive")
		}
		if in.AccrualPeriodEnd.Before(*in.AccrualPeriodStart) {
			return nil, domain.NewValidationError("accrual_period", "period end precedes period start")
		}
	}

	deal := &domain.Deal{
		ID:                  uuid.New().String(),
		Currency:            in.Currency,
		Name:                in.Name,
		CreatedBy:           in.CreatedBy,
		AccrualRevenueCents: in.AccrualRevenueCents,
		AccrualPeriodStart:  in.AccrualPeriodStart,
		AccrualPeriodEnd:    in.AccrualPeriodEnd,
		CreatedAt:           time.Now().UTC(),
	}
	if err := s.repos.Deals.CreateDeal(ctx, deal); err != nil {
		return nil, fmt.Errorf("create deal: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("deal_id", deal.ID).
		Str("currency", deal.Currency).
		Bool("has_accrual", deal.HasAccrual()).
		Msg("deal created")
	return deal, nil
}

// GetDeal loads one deal.
func (s *Service) GetDeal(ctx context.Context, dealID string) (*domain.Deal, error) {
	return s.repos.Deals.GetDeal(ctx, dealID)
}

// ListDeals lists deals, optionally filtered by creator.
func (s *Service) ListDeals(ctx context.Context, createdBy string) ([]*domain.Deal, error) {
	return s.repos.Deals.ListDeals(ctx, createdBy)
}

// IngestDocumentInput is the payload for IngestDocument.
type IngestDocumentInput struct {
	DealID    string `validate:"required"`
	FileName  string `validate:"required,max=500"`
	FileType  string `validate:"required,oneof=csv xlsx pdf"`
	CreatedBy string `validate:"required"`

	FileBytes []byte `validate:"required"`
}

// IngestDocument registers a document in pending state and enqueues the
// parse job. Callers poll the returned document id for completion; rows
// become visible only after the document reaches completed.
func (s *Service) IngestDocument(ctx context.Context, in IngestDocumentInput) (*domain.Document, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, domain.NewValidationError("document", err.Error())
	}

	deal, err := s.repos.Deals.GetDeal(ctx, in.DealID)
	if err != nil {
		return nil, err
	}

	docID := uuid.New().String()
	storageURI := "inline://" + in.FileName
	var inlineBytes []byte
	if s.store != nil && s.bucket != "" {
		objectName := fmt.Sprintf("deals/%s/documents/%s/%s", deal.ID, docID, in.FileName)
		uri, err := s.store.UploadBytes(ctx, s.bucket, objectName, in.FileBytes)
		if err != nil {
			return nil, fmt.Errorf("upload document: %w", err)
		}
		storageURI = uri
	} else {
		inlineBytes = in.FileBytes
	}

	doc := &domain.Document{
		ID:         docID,
		DealID:     deal.ID,
		Status:     domain.DocumentStatusPending,
		FileName:   in.FileName,
		FileType:   in.FileType,
		StorageURI: storageURI,
		CreatedBy:  in.CreatedBy,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repos.Documents.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	job := &jobs.ParseDocumentJob{
		DealID:       deal.ID,
		DocumentID:   doc.ID,
		StorageURI:   storageURI,
		FileType:     in.FileType,
		DealCurrency: deal.Currency,
		FileBytes:    inlineBytes,
	}
	if err := s.queue.PublishParseDocument(ctx, job); err != nil {
		// The document stays pending; a failed publish is operator-visible
		// through the job store and the stuck status.
		return nil, fmt.Errorf("enqueue parse job: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("deal_id", deal.ID).
		Str("document_id", doc.ID).
		Str("file_type", in.FileType).
		Str("storage_uri", storageURI).
		Msg("document ingested")
	return doc, nil
}

// DocumentStatus returns the document with its current parse state.
func (s *Service) DocumentStatus(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.repos.Documents.GetDocument(ctx, documentID)
}

// ListDocuments lists a deal's documents.
func (s *Service) ListDocuments(ctx context.Context, dealID string) ([]*domain.Document, error) {
	if _, err := s.repos.Deals.GetDeal(ctx, dealID); err != nil {
		return nil, err
	}
	return s.repos.Documents.ListDocumentsByDeal(ctx, dealID)
}

// DocumentTransactions lists the normalized rows parsed out of one
// document. Empty until the document completes.
func (s *Service) DocumentTransactions(ctx context.Context, documentID string) ([]*domain.Transaction, error) {
	if _, err := s.repos.Documents.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.repos.Transactions.ListTransactionsByDocument(ctx, documentID)
}

// ExportResult is what an export returns: the snapshot, the run it was
// computed from, and the derived state the run produced. Deduplicated
// reports a content-hash hit on a prior snapshot, in which case Snapshot is
// the existing row.
type ExportResult struct {
	Snapshot     *domain.Snapshot
	Run          *domain.AnalysisRun
	Entities     []*domain.Entity
	Mappings     []*domain.TxnEntityMapping
	Breakdown    []*domain.EntityBreakdown
	Deduplicated bool
}

// ExportSnapshot recomputes the deal's full analysis state and persists an
// immutable content-addressed snapshot of it. A deal with no transactions
// exports a zero-coverage NOT_RUN snapshot rather than erroring. Exports of
// identical state converge on one snapshot row.
func (s *Service) ExportSnapshot(ctx context.Context, dealID, createdBy string) (*ExportResult, error) {
	unlock := s.locks.Lock(dealID)
	defer unlock()
	ctx = logger.WithDeal(ctx, dealID)

	deal, err := s.repos.Deals.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}

	res, err := s.recompute(ctx, deal, "export")
	if err != nil {
		return nil, err
	}

	snap, deduplicated, err := s.snapshotLocked(ctx, deal, res, createdBy)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("snapshot_id", snap.ID).
		Str("sha256_hash", snap.SHA256Hash).
		Str("financial_state_hash", snap.FinancialStateHash).
		Str("tier", string(res.Run.Tier)).
		Bool("deduplicated", deduplicated).
		Msg("snapshot exported")
	return &ExportResult{
		Snapshot:     snap,
		Run:          res.Run,
		Entities:     res.Entities,
		Mappings:     res.Mappings,
		Breakdown:    res.Breakdown,
		Deduplicated: deduplicated,
	}, nil
}

// snapshotLocked builds the content-addressed snapshot for a freshly
// recomputed state and persists it, converging on an existing row when the
// hash already exists. Caller must hold the deal lock.
func (s *Service) snapshotLocked(ctx context.Context, deal *domain.Deal, res *recomputeResult, createdBy string) (*domain.Snapshot, bool, error) {
	snap, err := analysis.BuildSnapshot(analysis.BuildInput{
		Deal:         deal,
		Run:          res.Run,
		Transactions: res.Transactions,
		Links:        res.Links,
		Entities:     res.Entities,
		Mappings:     res.Mappings,
		Breakdown:    res.Breakdown,
		Overrides:    res.Overrides,
		CreatedBy:    createdBy,
	})
	if err != nil {
		return nil, false, fmt.Errorf("build snapshot: %w", err)
	}

	if existing, err := s.repos.Snapshots.GetSnapshotByHash(ctx, deal.ID, snap.SHA256Hash); err == nil && existing != nil {
		return existing, true, nil
	} else if err != nil && !domain.IsNotFound(err) {
		return nil, false, fmt.Errorf("snapshot lookup: %w", err)
	}

	if err := s.repos.Snapshots.InsertSnapshot(ctx, snap); err != nil {
		return nil, false, fmt.Errorf("insert snapshot: %w", err)
	}
	return snap, false, nil
}

// AddOverrideInput is the payload for AddOverride.
type AddOverrideInput struct {
	DealID    string      `validate:"required"`
	EntityID  string      `validate:"required"`
	NewRole   domain.Role `validate:"required"`
	Note      string      `validate:"max=2000"`
	CreatedBy string      `validate:"required"`
}

// AddOverride records a manual reclassification of an entity and
// immediately recomputes the deal's analysis state with the override in
// effect, persisting a fresh run and snapshot. The override is an
// append-only audit fact; its weight scores how disruptive the change was
// and feeds the confidence penalty.
func (s *Service) AddOverride(ctx context.Context, in AddOverrideInput) (*domain.Override, *ExportResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, nil, domain.NewValidationError("override", err.Error())
	}
	if !domain.ValidRole(in.NewRole) {
		return nil, nil, domain.NewValidationError("new_role", fmt.Sprintf("unknown role %q", in.NewRole))
	}

	unlock := s.locks.Lock(in.DealID)
	defer unlock()
	ctx = logger.WithDeal(ctx, in.DealID)

	deal, err := s.repos.Deals.GetDeal(ctx, in.DealID)
	if err != nil {
		return nil, nil, err
	}

	entities, err := s.repos.Entities.ListEntitiesByDeal(ctx, in.DealID)
	if err != nil {
		return nil, nil, fmt.Errorf("list entities: %w", err)
	}
	var target *domain.Entity
	for _, ent := range entities {
		if ent.ID == in.EntityID {
			target = ent
			break
		}
	}
	if target == nil {
		return nil, nil, domain.NewNotFoundError("entity", in.EntityID)
	}
	if target.Unclassified() {
		return nil, nil, domain.NewValidationError("entity_id", "the unclassified entity cannot be reclassified")
	}

	ov := &domain.Override{
		ID:        uuid.New().String(),
		DealID:    in.DealID,
		EntityID:  in.EntityID,
		OldRole:   target.Role,
		NewRole:   in.NewRole,
		WeightBP:  analysis.DeriveOverrideWeightBP(target.Role, in.NewRole),
		Note:      in.Note,
		CreatedBy: in.CreatedBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repos.Overrides.InsertOverride(ctx, ov); err != nil {
		return nil, nil, fmt.Errorf("insert override: %w", err)
	}

	res, err := s.recompute(ctx, deal, "override")
	if err != nil {
		return nil, nil, err
	}

	// The override's snapshot includes the new audit row in its payload,
	// so it never converges on a pre-override snapshot.
	snap, deduplicated, err := s.snapshotLocked(ctx, deal, res, in.CreatedBy)
	if err != nil {
		return nil, nil, err
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("entity_id", in.EntityID).
		Str("old_role", string(ov.OldRole)).
		Str("new_role", string(ov.NewRole)).
		Int64("weight_bp", ov.WeightBP).
		Str("snapshot_id", snap.ID).
		Msg("override applied")
	return ov, &ExportResult{
		Snapshot:     snap,
		Run:          res.Run,
		Entities:     res.Entities,
		Mappings:     res.Mappings,
		Breakdown:    res.Breakdown,
		Deduplicated: deduplicated,
	}, nil
}

// ListOverrides lists a deal's override audit trail, every row ever
// appended, not just the latest per entity.
func (s *Service) ListOverrides(ctx context.Context, dealID string) ([]*domain.Override, error) {
	if _, err := s.repos.Deals.GetDeal(ctx, dealID); err != nil {
		return nil, err
	}
	return s.repos.Overrides.ListOverridesByDeal(ctx, dealID)
}

// GetSnapshot loads one snapshot, including its canonical JSON payload.
func (s *Service) GetSnapshot(ctx context.Context, snapshotID string) (*domain.Snapshot, error) {
	return s.repos.Snapshots.GetSnapshot(ctx, snapshotID)
}

// ListSnapshots lists a deal's snapshots.
func (s *Service) ListSnapshots(ctx context.Context, dealID string) ([]*domain.Snapshot, error) {
	if _, err := s.repos.Deals.GetDeal(ctx, dealID); err != nil {
		return nil, err
	}
	return s.repos.Snapshots.ListSnapshotsByDeal(ctx, dealID)
}

// ListRuns lists a deal's analysis runs, the audit trail of every export
// and override recomputation.
func (s *Service) ListRuns(ctx context.Context, dealID string) ([]*domain.AnalysisRun, error) {
	if _, err := s.repos.Deals.GetDeal(ctx, dealID); err != nil {
		return nil, err
	}
	return s.repos.Runs.ListRunsByDeal(ctx, dealID)
}

// LatestRun returns the deal's current analysis run.
func (s *Service) LatestRun(ctx context.Context, dealID string) (*domain.AnalysisRun, error) {
	if _, err := s.repos.Deals.GetDeal(ctx, dealID); err != nil {
		return nil, err
	}
	return s.repos.Runs.LatestRun(ctx, dealID)
}

// recomputeResult extends the pipeline result with the override set it was
// computed over, which the snapshot builder needs for the audit section.
type recomputeResult struct {
	*analysis.Result
	Overrides []*domain.Override
}

// recompute runs the analysis pipeline over the deal's current state and
// persists the derived rows. Caller must hold the deal lock.
func (s *Service) recompute(ctx context.Context, deal *domain.Deal, trigger string) (*recomputeResult, error) {
	txns, err := s.repos.Transactions.ListTransactionsByDeal(ctx, deal.ID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	overrides, err := s.repos.Overrides.ListOverridesByDeal(ctx, deal.ID)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}

	res := analysis.Run(deal.ID, txns, overrides, analysis.Accrual{
		RevenueCents: deal.AccrualRevenueCents,
		PeriodStart:  deal.AccrualPeriodStart,
		PeriodEnd:    deal.AccrualPeriodEnd,
	}, trigger, s.cfg)

	if err := s.repos.Entities.UpsertEntities(ctx, res.Entities); err != nil {
		return nil, fmt.Errorf("upsert entities: %w", err)
	}
	if err := s.repos.Mappings.ReplaceMappings(ctx, deal.ID, res.Mappings); err != nil {
		return nil, fmt.Errorf("replace mappings: %w", err)
	}
	if err := s.repos.TransferLinks.ReplaceTransferLinks(ctx, deal.ID, res.Links); err != nil {
		return nil, fmt.Errorf("replace transfer links: %w", err)
	}
	if err := s.repos.Runs.InsertRun(ctx, res.Run); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	return &recomputeResult{Result: res, Overrides: overrides}, nil
}
