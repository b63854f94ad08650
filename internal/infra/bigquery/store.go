// Package bigquery implements the storage repositories on BigQuery. One
// table per aggregate, streaming inserts for append-only rows, DML for the
// replace-style relations. All repositories share one client.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/parity/internal/storage"
)

const (
	dealsTable         = "deals"
	documentsTable     = "documents"
	transactionsTable  = "transactions"
	entitiesTable      = "entities"
	mappingsTable      = "txn_entity_map"
	transferLinksTable = "transfer_links"
	overridesTable     = "overrides"
	runsTable          = "analysis_runs"
	snapshotsTable     = "snapshots"
)

// Store holds the shared BigQuery client and implements every storage
// repository interface.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewStore creates a Store with a shared BigQuery client. Application
// Default Credentials are assumed.
func NewStore(ctx context.Context, projectID, datasetID string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return &Store{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
	}, nil
}

// Close closes the shared BigQuery client.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Repositories returns the repository bundle backed by this store.
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

// tableRef renders the fully qualified `project.dataset.table` reference
// for use inside query text.
func (s *Store) tableRef(table string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.projectID, s.datasetID, table)
}

// inserter returns the streaming inserter for a table.
func (s *Store) inserter(table string) *bigquery.Inserter {
	return s.client.Dataset(s.datasetID).Table(table).Inserter()
}
