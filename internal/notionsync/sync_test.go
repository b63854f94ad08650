package notionsync

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/parity/internal/domain"
	"github.com/dvloznov/parity/internal/storage/memory"
	"github.com/jomei/notionapi"
)

type mockNotion struct {
	pages    []notionapi.Page
	created  []notionapi.Properties
	updated  map[string]notionapi.Properties
	archived []string
}

func newMockNotion(pages ...notionapi.Page) *mockNotion {
	return &mockNotion{
		pages:   pages,
		updated: make(map[string]notionapi.Properties),
	}
}

func (m *mockNotion) CreatePage(_ context.Context, _ string, props notionapi.Properties) (*notionapi.Page, error) {
	m.created = append(m.created, props)
	return &notionapi.Page{ID: notionapi.ObjectID("page-new")}, nil
}

func (m *mockNotion) UpdatePage(_ context.Context, pageID string, props notionapi.Properties) (*notionapi.Page, error) {
	m.updated[pageID] = props
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func (m *mockNotion) QueryDatabase(_ context.Context, _ string, _ *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return &notionapi.DatabaseQueryResponse{Results: m.pages, HasMore: false}, nil
}

func (m *mockNotion) ArchivePage(_ context.Context, pageID string) error {
	m.archived = append(m.archived, pageID)
	return nil
}

func dealPage(pageID, dealID string) notionapi.Page {
	return notionapi.Page{
		ID: notionapi.ObjectID(pageID),
		Properties: notionapi.Properties{
			"Deal ID": &notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{PlainText: dealID}},
			},
		},
	}
}

func seedDeal(t *testing.T, store *memory.Store, dealID string, withRun bool) {
	t.Helper()
	ctx := context.Background()
	repos := store.Repositories()

	if err := repos.Deals.CreateDeal(ctx, &domain.Deal{
		ID:        dealID,
		Currency:  "GBP",
		CreatedBy: "test",
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("CreateDeal: %v", err)
	}

	if !withRun {
		return
	}

	if err := repos.Runs.InsertRun(ctx, &domain.AnalysisRun{
		ID:                   "run-" + dealID,
		DealID:               dealID,
		RunTrigger:           "export",
		CoveragePctBP:        10000,
		ReconciliationStatus: domain.ReconciliationNotRun,
		FinalConfidenceBP:    9000,
		Tier:                 domain.TierHigh,
		CreatedAt:            time.Now(),
	}); err != nil {
		t.Fatalf("InsertRun: %v", err)
	}
}

func TestSyncDealSummariesCreatesAndUpdates(t *testing.T) {
	store := memory.NewStore()
	seedDeal(t, store, "deal-a", true)
	seedDeal(t, store, "deal-b", true)
	seedDeal(t, store, "deal-never-run", false)

	// deal-a already has a page; deal-b does not.
	notion := newMockNotion(dealPage("page-a", "deal-a"))

	if err := SyncDealSummaries(context.Background(), store.Repositories(), notion, "db", false); err != nil {
		t.Fatalf("SyncDealSummaries: %v", err)
	}

	if len(notion.created) != 1 {
		t.Fatalf("created = %d, want 1", len(notion.created))
	}
	if _, ok := notion.updated["page-a"]; !ok {
		t.Error("expected page-a to be updated")
	}
	if len(notion.archived) != 0 {
		t.Errorf("archived = %v, want none", notion.archived)
	}
}

func TestSyncDealSummariesArchivesStalePages(t *testing.T) {
	store := memory.NewStore()
	seedDeal(t, store, "deal-a", true)

	notion := newMockNotion(
		dealPage("page-a", "deal-a"),
		dealPage("page-gone", "deal-deleted"),
	)

	if err := SyncDealSummaries(context.Background(), store.Repositories(), notion, "db", false); err != nil {
		t.Fatalf("SyncDealSummaries: %v", err)
	}

	if len(notion.archived) != 1 || notion.archived[0] != "page-gone" {
		t.Errorf("archived = %v, want [page-gone]", notion.archived)
	}
}

func TestSyncDealSummariesDryRunWritesNothing(t *testing.T) {
	store := memory.NewStore()
	seedDeal(t, store, "deal-a", true)

	notion := newMockNotion(dealPage("page-gone", "deal-deleted"))

	if err := SyncDealSummaries(context.Background(), store.Repositories(), notion, "db", true); err != nil {
		t.Fatalf("SyncDealSummaries: %v", err)
	}

	if len(notion.created) != 0 || len(notion.updated) != 0 || len(notion.archived) != 0 {
		t.Errorf("dry run wrote: created=%d updated=%d archived=%v",
			len(notion.created), len(notion.updated), notion.archived)
	}
}

func TestDealSummaryProperties(t *testing.T) {
	pct := int64(9650)
	run := &domain.AnalysisRun{
		ID:                   "run-1",
		DealID:               "deal-1",
		ReconciliationStatus: domain.ReconciliationPassed,
		ReconciliationPctBP:  &pct,
		CoveragePctBP:        10000,
		FinalConfidenceBP:    8542,
		Tier:                 domain.TierHigh,
		CreatedAt:            time.Now(),
	}
	deal := &domain.Deal{ID: "deal-1", Currency: "GBP", Name: "Alpha Fund"}
	snap := &domain.Snapshot{
		ID:                 "snap-1",
		SHA256Hash:         "abc123",
		FinancialStateHash: "def456",
		CreatedAt:          time.Now(),
	}

	props := DealSummaryProperties(deal, run, snap)

	title, ok := props["Deal"].(notionapi.TitleProperty)
	if !ok || title.Title[0].Text.Content != "Alpha Fund" {
		t.Errorf("Deal title = %+v, want Alpha Fund", props["Deal"])
	}
	conf, ok := props["Confidence %"].(notionapi.NumberProperty)
	if !ok || conf.Number != 85.42 {
		t.Errorf("Confidence %% = %+v, want 85.42", props["Confidence %"])
	}
	recon, ok := props["Reconciliation %"].(notionapi.NumberProperty)
	if !ok || recon.Number != 96.50 {
		t.Errorf("Reconciliation %% = %+v, want 96.5", props["Reconciliation %"])
	}
	hash, ok := props["Snapshot Hash"].(notionapi.RichTextProperty)
	if !ok || hash.RichText[0].Text.Content != "abc123" {
		t.Errorf("Snapshot Hash = %+v, want abc123", props["Snapshot Hash"])
	}
}

func TestDealSummaryPropertiesWithoutSnapshot(t *testing.T) {
	run := &domain.AnalysisRun{
		ID:                   "run-1",
		ReconciliationStatus: domain.ReconciliationNotRun,
		Tier:                 domain.TierLow,
		CreatedAt:            time.Now(),
	}
	deal := &domain.Deal{ID: "deal-1", Currency: "USD"}

	props := DealSummaryProperties(deal, run, nil)

	// Falls back to the deal ID when no name is set.
	title := props["Deal"].(notionapi.TitleProperty)
	if title.Title[0].Text.Content != "deal-1" {
		t.Errorf("Deal title = %q, want deal-1", title.Title[0].Text.Content)
	}
	if _, ok := props["Snapshot Hash"]; ok {
		t.Error("Snapshot Hash should be absent without a snapshot")
	}
	if _, ok := props["Reconciliation %"]; ok {
		t.Error("Reconciliation % should be absent when reconciliation never ran")
	}
}
