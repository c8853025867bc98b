package exporters

import (
	"context"
	"fmt"
	"time"

	"github.com/libsync/exportd/internal/domain"
	"github.com/libsync/exportd/internal/export"
	"github.com/libsync/exportd/internal/solr"
)

const ItemsToSolrName = "ItemsToSolr"

// ItemsToSolr loads item records into the items core and removes
// tombstoned items from it.
type ItemsToSolr struct {
	deps        Deps
	maxRecChunk int
	maxDelChunk int
}

// NewItemsToSolr creates the items exporter. recOverrides and
// delOverrides carry the parsed per-type chunk size overrides.
func NewItemsToSolr(deps Deps, recOverrides, delOverrides map[string]int) *ItemsToSolr {
	return &ItemsToSolr{
		deps:        deps,
		maxRecChunk: chunkSize(recOverrides, ItemsToSolrName, defaultMaxRecChunk),
		maxDelChunk: chunkSize(delOverrides, ItemsToSolrName, defaultMaxDelChunk),
	}
}

func (e *ItemsToSolr) Name() string     { return ItemsToSolrName }
func (e *ItemsToSolr) MaxRecChunk() int { return e.maxRecChunk }
func (e *ItemsToSolr) MaxDelChunk() int { return e.maxDelChunk }

func (e *ItemsToSolr) GetRecords(ctx context.Context, f domain.ExportFilter) ([]uint64, error) {
	sctx, cancel := e.deps.sourceCtx(ctx)
	defer cancel()
	return e.deps.Records.ItemIDs(sctx, f)
}

func (e *ItemsToSolr) GetDeletions(ctx context.Context, f domain.ExportFilter) ([]uint64, error) {
	sctx, cancel := e.deps.sourceCtx(ctx)
	defer cancel()
	return e.deps.Records.ItemDeletionIDs(sctx, f)
}

func (e *ItemsToSolr) ExportChunk(ctx context.Context, ids []uint64) (export.ChunkReport, error) {
	sctx, cancel := e.deps.sourceCtx(ctx)
	items, err := e.deps.Records.FetchItems(sctx, ids)
	cancel()
	if err != nil {
		return export.ChunkReport{}, err
	}

	var warnings []string
	if len(items) < len(ids) {
		warnings = append(warnings, fmt.Sprintf("%d of %d item records vanished between listing and fetch", len(ids)-len(items), len(ids)))
	}

	docs := make([]solr.Document, 0, len(items))
	for i := range items {
		docs = append(docs, itemDocument(&items[i]))
	}
	if err := e.deps.Solr.Add(ctx, e.deps.Core, docs); err != nil {
		return export.ChunkReport{}, err
	}

	for i := range items {
		warnings = cachePut(ctx, e.deps.Cache, "item", items[i].ID, &items[i], warnings)
	}
	return export.ChunkReport{Processed: len(docs), Warnings: warnings}, nil
}

func (e *ItemsToSolr) DeleteChunk(ctx context.Context, ids []uint64) (export.ChunkReport, error) {
	if err := e.deps.Solr.DeleteByIDs(ctx, e.deps.Core, docIDs(ids)); err != nil {
		return export.ChunkReport{}, err
	}
	warnings := cacheDelete(ctx, e.deps.Cache, "item", ids, nil)
	return export.ChunkReport{Processed: len(ids), Warnings: warnings}, nil
}

func (e *ItemsToSolr) Finalize(ctx context.Context) ([]string, error) {
	replWarnings, err := e.deps.Solr.Commit(ctx, e.deps.Core)
	warnings := make([]string, 0, len(replWarnings))
	for _, w := range replWarnings {
		warnings = append(warnings, w.String())
	}
	return warnings, err
}

// itemDocument flattens one item record into its index document.
func itemDocument(it *domain.ItemRecord) solr.Document {
	doc := solr.Document{
		"id":          fmt.Sprintf("%d", it.ID),
		"bib_id":      it.BibID,
		"barcode":     it.Barcode,
		"call_number": it.CallNumber,
		"suppressed":  it.Suppressed,
		"updated_at":  it.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if it.LocationCode != nil {
		doc["location_code"] = *it.LocationCode
	}
	return doc
}
