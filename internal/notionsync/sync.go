package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/parity/internal/domain"
	"github.com/dvloznov/parity/internal/logger"
	"github.com/dvloznov/parity/internal/storage"
	"github.com/jomei/notionapi"
)

// SyncDealSummaries mirrors the latest analysis state of every deal into a
// Notion database, one page per deal keyed by the Deal ID property.
//
// The sync is a full reconcile:
//  1. Every deal with at least one analysis run gets a page created or
//     updated from its latest run and latest snapshot.
//  2. Pages whose Deal ID no longer matches a tracked deal are archived.
//
// Deals that have never been analyzed are skipped; there is nothing to report
// until the first export or override runs the pipeline.
func SyncDealSummaries(ctx context.Context, repos storage.Repositories, notionClient NotionService, notionDBID string, dryRun bool) error {
	log := logger.FromContext(ctx)

	log.Info().Bool("dry_run", dryRun).Msg("Starting deal summary sync to Notion")

	deals, err := repos.Deals.ListDeals(ctx, "")
	if err != nil {
		return fmt.Errorf("SyncDealSummaries: listing deals: %w", err)
	}

	log.Info().Int("deal_count", len(deals)).Msg("Retrieved deals")

	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return fmt.Errorf("SyncDealSummaries: querying Notion pages: %w", err)
	}

	log.Info().Int("notion_page_count", len(notionPages)).Msg("Retrieved existing Notion pages")

	// Index existing pages by Deal ID for idempotent create-or-update.
	pageByDeal := make(map[string]notionapi.Page)
	for _, page := range notionPages {
		if dealID := extractDealID(page); dealID != "" {
			pageByDeal[dealID] = page
		}
	}

	var created, updated, skipped int
	syncedDeals := make(map[string]bool)

	for _, deal := range deals {
		run, err := repos.Runs.LatestRun(ctx, deal.ID)
		if err != nil {
			if domain.IsNotFound(err) {
				skipped++
				continue
			}
			return fmt.Errorf("SyncDealSummaries: latest run for deal %s: %w", deal.ID, err)
		}

		snap, err := latestSnapshot(ctx, repos.Snapshots, deal.ID)
		if err != nil {
			return fmt.Errorf("SyncDealSummaries: latest snapshot for deal %s: %w", deal.ID, err)
		}

		props := DealSummaryProperties(deal, run, snap)
		syncedDeals[deal.ID] = true

		existing, exists := pageByDeal[deal.ID]

		if dryRun {
			if exists {
				log.Info().
					Str("deal_id", deal.ID).
					Str("page_id", string(existing.ID)).
					Msg("[DRY RUN] Would update Notion page")
				updated++
			} else {
				log.Info().
					Str("deal_id", deal.ID).
					Msg("[DRY RUN] Would create Notion page")
				created++
			}
			continue
		}

		if exists {
			if _, err := notionClient.UpdatePage(ctx, string(existing.ID), props); err != nil {
				log.Warn().
					Err(err).
					Str("deal_id", deal.ID).
					Str("page_id", string(existing.ID)).
					Msg("Failed to update Notion page")
				continue
			}
			updated++
		} else {
			page, err := notionClient.CreatePage(ctx, notionDBID, props)
			if err != nil {
				log.Warn().
					Err(err).
					Str("deal_id", deal.ID).
					Msg("Failed to create Notion page")
				continue
			}
			log.Info().
				Str("deal_id", deal.ID).
				Str("page_id", string(page.ID)).
				Msg("Created Notion page")
			created++
		}
	}

	// Archive pages for deals that no longer exist or lost their Deal ID.
	var archived int
	for _, page := range notionPages {
		dealID := extractDealID(page)
		if dealID != "" && syncedDeals[dealID] {
			continue
		}

		if dryRun {
			log.Info().
				Str("deal_id", dealID).
				Str("page_id", string(page.ID)).
				Msg("[DRY RUN] Would archive stale Notion page")
			archived++
			continue
		}

		if err := notionClient.ArchivePage(ctx, string(page.ID)); err != nil {
			log.Warn().
				Err(err).
				Str("deal_id", dealID).
				Str("page_id", string(page.ID)).
				Msg("Failed to archive stale Notion page")
			continue
		}
		archived++
	}

	log.Info().
		Int("created", created).
		Int("updated", updated).
		Int("skipped", skipped).
		Int("archived", archived).
		Msg("Deal summary sync complete")

	return nil
}

// latestSnapshot returns the deal's most recent snapshot, or nil when the
// deal has never been exported. Selection is by CreatedAt rather than list
// position so the result does not depend on storage ordering.
func latestSnapshot(ctx context.Context, repo storage.SnapshotRepository, dealID string) (*domain.Snapshot, error) {
	snaps, err := repo.ListSnapshotsByDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}

	var latest *domain.Snapshot
	for _, s := range snaps {
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	return latest, nil
}

// queryAllNotionPages pages through the full database contents.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
