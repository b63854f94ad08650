// Package memory holds the in-memory repository implementations. Safe for
// concurrent use; data is lost on restart. Tests and single-instance local
// runs use these, mirroring the split between the in-memory job queue and
// its production counterparts.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/parity/internal/domain"
	"github.com/dvloznov/parity/internal/storage"
)

// Store is the shared backing state for all in-memory repositories.
type Store struct {
	mu sync.RWMutex

	deals     map[string]*domain.Deal
	documents map[string]*domain.Document
	// txns keyed by document id
	txnsByDocument map[string][]*domain.Transaction
	entities       map[string]map[string]*domain.Entity // dealID -> entityID -> entity
	mappings       map[string][]*domain.TxnEntityMapping
	links          map[string][]*domain.TransferLink
	overrides      map[string][]*domain.Override
	runs           map[string][]*domain.AnalysisRun
	snapshots      map[string]*domain.Snapshot
	snapsByDeal    map[string][]*domain.Snapshot
}

// NewStore creates empty in-memory state.
func NewStore() *Store {
	return &Store{
		deals:          make(map[string]*domain.Deal),
		documents:      make(map[string]*domain.Document),
		txnsByDocument: make(map[string][]*domain.Transaction),
		entities:       make(map[string]map[string]*domain.Entity),
		mappings:       make(map[string][]*domain.TxnEntityMapping),
		links:          make(map[string][]*domain.TransferLink),
		overrides:      make(map[string][]*domain.Override),
		runs:           make(map[string][]*domain.AnalysisRun),
		snapshots:      make(map[string]*domain.Snapshot),
		snapsByDeal:    make(map[string][]*domain.Snapshot),
	}
}

// Repositories returns the full repository bundle backed by this store.
func (s *Store) Repositories() storage.Repositories {
	return storage.Repositories{
		Deals:         s,
		Documents:     s,
		Transactions:  s,
		Entities:      s,
		Mappings:      s,
		TransferLinks: s,
		Overrides:     s,
		Runs:          s,
		Snapshots:     s,
	}
}

func (s *Store) CreateDeal(_ context.Context, deal *domain.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *deal
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.deals[cp.ID] = &cp
	return nil
}

func (s *Store) GetDeal(_ context.Context, id string) (*domain.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	deal, ok := s.deals[id]
	if !ok {
		return nil, domain.NewNotFoundError("deal", id)
	}
	cp := *deal
	return &cp, nil
}

func (s *Store) ListDeals(_ context.Context, createdBy string) ([]*domain.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Deal
	for _, deal := range s.deals {
		if createdBy != "" && deal.CreatedBy != createdBy {
			continue
		}
		cp := *deal
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *doc
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	if cp.Status == "" {
		cp.Status = domain.DocumentStatusPending
	}
	s.documents[cp.ID] = &cp
	return nil
}

func (s *Store) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.NewNotFoundError("document", id)
	}
	cp := *doc
	return &cp, nil
}

func (s *Store) ListDocumentsByDeal(_ context.Context, dealID string) ([]*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Document
	for _, doc := range s.documents {
		if doc.DealID != dealID {
			continue
		}
		cp := *doc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateDocumentStatus(_ context.Context, id string, status domain.DocumentStatus, errorMessage, currencyDetected string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return domain.NewNotFoundError("document", id)
	}
	// Terminal states never regress.
	if doc.Status.Terminal() {
		return nil
	}
	doc.Status = status
	if errorMessage != "" {
		doc.ErrorMessage = errorMessage
	}
	if currencyDetected != "" {
		doc.CurrencyDetected = currencyDetected
	}
	return nil
}

func (s *Store) InsertTransactions(_ context.Context, txns []*domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txns {
		cp := *tx
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now().UTC()
		}
		s.txnsByDocument[cp.DocumentID] = append(s.txnsByDocument[cp.DocumentID], &cp)
	}
	return nil
}

func (s *Store) ListTransactionsByDocument(_ context.Context, documentID string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyTxns(s.txnsByDocument[documentID]), nil
}

func (s *Store) ListTransactionsByDeal(_ context.Context, dealID string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Transaction
	for _, txns := range s.txnsByDocument {
		for _, tx := range txns {
			if tx.DealID == dealID {
				cp := *tx
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (s *Store) UpsertEntities(_ context.Context, entities []*domain.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ent := range entities {
		byID, ok := s.entities[ent.DealID]
		if !ok {
			byID = make(map[string]*domain.Entity)
			s.entities[ent.DealID] = byID
		}
		cp := *ent
		byID[cp.ID] = &cp
	}
	return nil
}

func (s *Store) ListEntitiesByDeal(_ context.Context, dealID string) ([]*domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Entity
	for _, ent := range s.entities[dealID] {
		cp := *ent
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ReplaceMappings(_ context.Context, dealID string, mappings []*domain.TxnEntityMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.TxnEntityMapping, 0, len(mappings))
	for _, m := range mappings {
		cp := *m
		out = append(out, &cp)
	}
	s.mappings[dealID] = out
	return nil
}

func (s *Store) ListMappingsByDeal(_ context.Context, dealID string) ([]*domain.TxnEntityMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.TxnEntityMapping, 0, len(s.mappings[dealID]))
	for _, m := range s.mappings[dealID] {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TxnID < out[j].TxnID })
	return out, nil
}

func (s *Store) ReplaceTransferLinks(_ context.Context, dealID string, links []*domain.TransferLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.TransferLink, 0, len(links))
	for _, l := range links {
		cp := *l
		out = append(out, &cp)
	}
	s.links[dealID] = out
	return nil
}

func (s *Store) ListTransferLinksByDeal(_ context.Context, dealID string) ([]*domain.TransferLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.TransferLink, 0, len(s.links[dealID]))
	for _, l := range s.links[dealID] {
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) InsertOverride(_ context.Context, ov *domain.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ov
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.overrides[cp.DealID] = append(s.overrides[cp.DealID], &cp)
	return nil
}

func (s *Store) ListOverridesByDeal(_ context.Context, dealID string) ([]*domain.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Override, 0, len(s.overrides[dealID]))
	for _, ov := range s.overrides[dealID] {
		cp := *ov
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) InsertRun(_ context.Context, run *domain.AnalysisRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[cp.DealID] = append(s.runs[cp.DealID], &cp)
	return nil
}

func (s *Store) LatestRun(_ context.Context, dealID string) (*domain.AnalysisRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := s.runs[dealID]
	if len(runs) == 0 {
		return nil, domain.NewNotFoundError("analysis run for deal", dealID)
	}
	cp := *runs[len(runs)-1]
	return &cp, nil
}

func (s *Store) ListRunsByDeal(_ context.Context, dealID string) ([]*domain.AnalysisRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.AnalysisRun, 0, len(s.runs[dealID]))
	for _, run := range s.runs[dealID] {
		cp := *run
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) InsertSnapshot(_ context.Context, snap *domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.snapshots[cp.ID] = &cp
	s.snapsByDeal[cp.DealID] = append(s.snapsByDeal[cp.DealID], &cp)
	return nil
}

func (s *Store) GetSnapshot(_ context.Context, id string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return nil, domain.NewNotFoundError("snapshot", id)
	}
	cp := *snap
	return &cp, nil
}

func (s *Store) GetSnapshotByHash(_ context.Context, dealID, sha256Hash string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, snap := range s.snapsByDeal[dealID] {
		if snap.SHA256Hash == sha256Hash {
			cp := *snap
			return &cp, nil
		}
	}
	return nil, domain.NewNotFoundError("snapshot with hash", sha256Hash)
}

func (s *Store) ListSnapshotsByDeal(_ context.Context, dealID string) ([]*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Snapshot, 0, len(s.snapsByDeal[dealID]))
	for _, snap := range s.snapsByDeal[dealID] {
		cp := *snap
		out = append(out, &cp)
	}
	return out, nil
}

func copyTxns(txns []*domain.Transaction) []*domain.Transaction {
	out := make([]*domain.Transaction, 0, len(txns))
	for _, tx := range txns {
		cp := *tx
		out = append(out, &cp)
	}
	return out
}
