package exporters

import (
	"context"
	"fmt"
	"time"

	"github.com/libsync/exportd/internal/domain"
	"github.com/libsync/exportd/internal/export"
	"github.com/libsync/exportd/internal/solr"
)

const BibsToSolrName = "BibsToSolr"

// BibsToSolr loads bib records, with their attached items embedded,
// into the bibs core. It understands the bib-location filter variant
// the item exporter does not.
type BibsToSolr struct {
	deps        Deps
	maxRecChunk int
	maxDelChunk int
}

func NewBibsToSolr(deps Deps, recOverrides, delOverrides map[string]int) *BibsToSolr {
	return &BibsToSolr{
		deps:        deps,
		maxRecChunk: chunkSize(recOverrides, BibsToSolrName, defaultMaxRecChunk),
		maxDelChunk: chunkSize(delOverrides, BibsToSolrName, defaultMaxDelChunk),
	}
}

func (e *BibsToSolr) Name() string     { return BibsToSolrName }
func (e *BibsToSolr) MaxRecChunk() int { return e.maxRecChunk }
func (e *BibsToSolr) MaxDelChunk() int { return e.maxDelChunk }

func (e *BibsToSolr) GetRecords(ctx context.Context, f domain.ExportFilter) ([]uint64, error) {
	sctx, cancel := e.deps.sourceCtx(ctx)
	defer cancel()
	return e.deps.Records.BibIDs(sctx, f)
}

func (e *BibsToSolr) GetDeletions(ctx context.Context, f domain.ExportFilter) ([]uint64, error) {
	sctx, cancel := e.deps.sourceCtx(ctx)
	defer cancel()
	return e.deps.Records.BibDeletionIDs(sctx, f)
}

func (e *BibsToSolr) ExportChunk(ctx context.Context, ids []uint64) (export.ChunkReport, error) {
	sctx, cancel := e.deps.sourceCtx(ctx)
	bibs, err := e.deps.Records.FetchBibs(sctx, ids)
	cancel()
	if err != nil {
		return export.ChunkReport{}, err
	}

	var warnings []string
	if len(bibs) < len(ids) {
		warnings = append(warnings, fmt.Sprintf("%d of %d bib records vanished between listing and fetch", len(ids)-len(bibs), len(ids)))
	}

	docs := make([]solr.Document, 0, len(bibs))
	for i := range bibs {
		docs = append(docs, bibDocument(&bibs[i]))
	}
	if err := e.deps.Solr.Add(ctx, e.deps.Core, docs); err != nil {
		return export.ChunkReport{}, err
	}

	for i := range bibs {
		warnings = cachePut(ctx, e.deps.Cache, "bib", bibs[i].ID, &bibs[i], warnings)
	}
	return export.ChunkReport{Processed: len(docs), Warnings: warnings}, nil
}

func (e *BibsToSolr) DeleteChunk(ctx context.Context, ids []uint64) (export.ChunkReport, error) {
	if err := e.deps.Solr.DeleteByIDs(ctx, e.deps.Core, docIDs(ids)); err != nil {
		return export.ChunkReport{}, err
	}
	warnings := cacheDelete(ctx, e.deps.Cache, "bib", ids, nil)
	return export.ChunkReport{Processed: len(ids), Warnings: warnings}, nil
}

func (e *BibsToSolr) Finalize(ctx context.Context) ([]string, error) {
	replWarnings, err := e.deps.Solr.Commit(ctx, e.deps.Core)
	warnings := make([]string, 0, len(replWarnings))
	for _, w := range replWarnings {
		warnings = append(warnings, w.String())
	}
	return warnings, err
}

// bibDocument flattens one bib and its live items into an index
// document. Item fields are denormalized into multi-valued arrays the
// way the discovery layer expects them.
func bibDocument(b *domain.BibRecord) solr.Document {
	doc := solr.Document{
		"id":            fmt.Sprintf("%d", b.ID),
		"title":         b.Title,
		"author":        b.Author,
		"location_code": b.LocationCode,
		"suppressed":    b.Suppressed,
		"updated_at":    b.UpdatedAt.UTC().Format(time.RFC3339),
	}

	if len(b.Items) > 0 {
		barcodes := make([]string, 0, len(b.Items))
		callNumbers := make([]string, 0, len(b.Items))
		itemLocations := make([]string, 0, len(b.Items))
		for i := range b.Items {
			barcodes = append(barcodes, b.Items[i].Barcode)
			callNumbers = append(callNumbers, b.Items[i].CallNumber)
			if b.Items[i].LocationCode != nil {
				itemLocations = append(itemLocations, *b.Items[i].LocationCode)
			}
		}
		doc["item_barcodes"] = barcodes
		doc["item_call_numbers"] = callNumbers
		doc["item_locations"] = itemLocations
		doc["item_count"] = len(b.Items)
	}
	return doc
}
