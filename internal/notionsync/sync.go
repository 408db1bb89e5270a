// Package notionsync exports stored transactions to a Notion database.
package notionsync

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/jomei/notionapi"

	"github.com/dvloznov/finance-ingest/internal/batch"
	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/dvloznov/finance-ingest/internal/logger"
	"github.com/dvloznov/finance-ingest/internal/store"
)

const (
	// BatchSize is the number of transactions logged as one export batch.
	BatchSize = 100
	// queryPageSize is the Notion query page size.
	queryPageSize = 100
)

// ExportResult counts what an export did, or would do on a dry run.
type ExportResult struct {
	Total    int  `json:"total"`
	Created  int  `json:"created"`
	Updated  int  `json:"updated"`
	Skipped  int  `json:"skipped"`
	Archived int  `json:"archived"`
	Failed   int  `json:"failed"`
	DryRun   bool `json:"dryRun"`
}

// ExportTransactions makes the Notion database mirror the store:
//  1. every page of the database is read;
//  2. pages whose Transaction ID is missing or no longer stored are archived;
//  3. a page is created for every transaction in [start, end] not yet present,
//     and a present page whose amount or category changed is updated.
//
// Nil bounds are open. Per-page failures are logged, counted and skipped.
func ExportTransactions(ctx context.Context, source Source, notion NotionService, databaseID string, start, end *civil.Date, dryRun bool) (*ExportResult, error) {
	log := logger.FromContext(ctx)

	log.Info().
		Str("database_id", databaseID).
		Bool("dry_run", dryRun).
		Msg("Starting transaction export to Notion")

	stored := make(map[string]bool)
	for _, tx := range source.Query(store.QueryOptions{}) {
		stored[tx.ID] = true
	}
	inRange := source.Query(store.QueryOptions{Start: start, End: end})

	pages, err := queryAllNotionPages(ctx, notion, databaseID)
	if err != nil {
		return nil, fmt.Errorf("ExportTransactions: querying Notion pages: %w", err)
	}
	log.Info().Int("notion_page_count", len(pages)).Int("transaction_count", len(inRange)).Msg("Retrieved existing Notion pages")

	res := &ExportResult{Total: len(inRange), DryRun: dryRun}

	present := make(map[string]notionapi.Page)
	for _, page := range pages {
		txID := extractTransactionID(page)
		if txID != "" && stored[txID] {
			present[txID] = page
			continue
		}
		if dryRun {
			log.Info().Str("transaction_id", txID).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive stale Notion page")
			res.Archived++
			continue
		}
		if err := notion.ArchivePage(ctx, string(page.ID)); err != nil {
			log.Warn().Err(err).Str("transaction_id", txID).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
			res.Failed++
			continue
		}
		res.Archived++
	}

	for i, chunk := range batch.Chunk(inRange, BatchSize) {
		log.Debug().Int("batch", i).Int("batch_size", len(chunk)).Msg("Processing batch")
		for _, tx := range chunk {
			if page, ok := present[tx.ID]; ok {
				updatePage(ctx, notion, page, tx, dryRun, res)
				continue
			}
			if dryRun {
				log.Info().Str("transaction_id", tx.ID).Msg("[DRY RUN] Would create Notion page")
				res.Created++
				continue
			}
			page, err := notion.CreatePage(ctx, databaseID, TransactionToNotionProperties(tx))
			if err != nil {
				log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to create Notion page")
				res.Failed++
				continue
			}
			log.Debug().Str("transaction_id", tx.ID).Str("page_id", string(page.ID)).Msg("Created Notion page")
			res.Created++
		}
	}

	log.Info().
		Int("archived", res.Archived).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Int("total", res.Total).
		Msg("Transaction export completed")
	return res, nil
}

func updatePage(ctx context.Context, notion NotionService, page notionapi.Page, tx *domain.Transaction, dryRun bool, res *ExportResult) {
	log := logger.FromContext(ctx).With().Str("transaction_id", tx.ID).Str("page_id", string(page.ID)).Logger()
	if pageIsCurrent(page, tx) {
		res.Skipped++
		return
	}
	if dryRun {
		log.Info().Msg("[DRY RUN] Would update Notion page")
		res.Updated++
		return
	}
	if _, err := notion.UpdatePage(ctx, string(page.ID), TransactionToNotionProperties(tx)); err != nil {
		log.Warn().Err(err).Msg("Failed to update Notion page")
		res.Failed++
		return
	}
	res.Updated++
}

// queryAllNotionPages follows the query cursor until every page is read.
func queryAllNotionPages(ctx context.Context, notion NotionService, databaseID string) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: queryPageSize}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notion.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}
		all = append(all, resp.Results...)

		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}
	return all, nil
}
