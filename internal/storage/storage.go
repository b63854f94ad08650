// Package storage defines the repository contracts the analysis core
// persists through. Two implementations exist: memory (tests, local runs)
// and the BigQuery-backed repositories in internal/infra/bigquery.
package storage

import (
	"context"

	"github.com/dvloznov/parity/internal/domain"
)

// DealRepository persists deals. Deals are immutable after creation.
type DealRepository interface {
	CreateDeal(ctx context.Context, deal *domain.Deal) error
	GetDeal(ctx context.Context, id string) (*domain.Deal, error)
	ListDeals(ctx context.Context, createdBy string) ([]*domain.Deal, error)
}

// DocumentRepository persists documents and their parse status. Status
// updates must be monotonic: implementations reject transitions out of a
// terminal state.
type DocumentRepository interface {
	CreateDocument(ctx context.Context, doc *domain.Document) error
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	ListDocumentsByDeal(ctx context.Context, dealID string) ([]*domain.Document, error)
	// UpdateDocumentStatus transitions the document's parse status.
	// errorMessage and currencyDetected are recorded when non-empty.
	UpdateDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, errorMessage, currencyDetected string) error
}

// TransactionRepository persists parsed transaction rows. Rows are
// write-once per document.
type TransactionRepository interface {
	InsertTransactions(ctx context.Context, txns []*domain.Transaction) error
	ListTransactionsByDocument(ctx context.Context, documentID string) ([]*domain.Transaction, error)
	ListTransactionsByDeal(ctx context.Context, dealID string) ([]*domain.Transaction, error)
}

// EntityRepository persists resolved entities. Upsert semantics: entity ids
// are deterministic, so re-running the pipeline rewrites the same rows.
type EntityRepository interface {
	UpsertEntities(ctx context.Context, entities []*domain.Entity) error
	ListEntitiesByDeal(ctx context.Context, dealID string) ([]*domain.Entity, error)
}

// MappingRepository persists the transaction -> entity relation. Replace
// semantics per deal: each pipeline run rewrites the full mapping set,
// which keeps re-mapping idempotent per transaction.
type MappingRepository interface {
	ReplaceMappings(ctx context.Context, dealID string, mappings []*domain.TxnEntityMapping) error
	ListMappingsByDeal(ctx context.Context, dealID string) ([]*domain.TxnEntityMapping, error)
}

// TransferLinkRepository persists matched transfer pairs, replaced per run.
type TransferLinkRepository interface {
	ReplaceTransferLinks(ctx context.Context, dealID string, links []*domain.TransferLink) error
	ListTransferLinksByDeal(ctx context.Context, dealID string) ([]*domain.TransferLink, error)
}

// OverrideRepository is the append-only override audit log.
type OverrideRepository interface {
	InsertOverride(ctx context.Context, ov *domain.Override) error
	ListOverridesByDeal(ctx context.Context, dealID string) ([]*domain.Override, error)
}

// RunRepository persists analysis runs. Prior runs are retained, never
// mutated; the latest per deal is the current one.
type RunRepository interface {
	InsertRun(ctx context.Context, run *domain.AnalysisRun) error
	LatestRun(ctx context.Context, dealID string) (*domain.AnalysisRun, error)
	ListRunsByDeal(ctx context.Context, dealID string) ([]*domain.AnalysisRun, error)
}

// SnapshotRepository persists snapshots. Write-once; GetSnapshotByHash
// supports export dedupe.
type SnapshotRepository interface {
	InsertSnapshot(ctx context.Context, snap *domain.Snapshot) error
	GetSnapshot(ctx context.Context, id string) (*domain.Snapshot, error)
	GetSnapshotByHash(ctx context.Context, dealID, sha256Hash string) (*domain.Snapshot, error)
	ListSnapshotsByDeal(ctx context.Context, dealID string) ([]*domain.Snapshot, error)
}

// Repositories bundles every repository the service layer needs.
type Repositories struct {
	Deals         DealRepository
	Documents     DocumentRepository
	Transactions  TransactionRepository
	Entities      EntityRepository
	Mappings      MappingRepository
	TransferLinks TransferLinkRepository
	Overrides     OverrideRepository
	Runs          RunRepository
	Snapshots     SnapshotRepository
}
