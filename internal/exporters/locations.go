package exporters

import (
	"context"
	"fmt"

	"github.com/libsync/exportd/internal/domain"
	"github.com/libsync/exportd/internal/export"
	"github.com/libsync/exportd/internal/solr"
)

const LocationsToSolrName = "LocationsToSolr"

// LocationsToSolr reindexes the location reference set into its
// metadata core. The set is small and has no tombstones, so every run
// is a full reindex regardless of the requested filter and the
// deletion pass is always empty.
type LocationsToSolr struct {
	deps        Deps
	maxRecChunk int
}

func NewLocationsToSolr(deps Deps, recOverrides map[string]int) *LocationsToSolr {
	return &LocationsToSolr{
		deps:        deps,
		maxRecChunk: chunkSize(recOverrides, LocationsToSolrName, defaultMaxRecChunk),
	}
}

func (e *LocationsToSolr) Name() string     { return LocationsToSolrName }
func (e *LocationsToSolr) MaxRecChunk() int { return e.maxRecChunk }
func (e *LocationsToSolr) MaxDelChunk() int { return defaultMaxDelChunk }

func (e *LocationsToSolr) GetRecords(ctx context.Context, _ domain.ExportFilter) ([]uint64, error) {
	sctx, cancel := e.deps.sourceCtx(ctx)
	defer cancel()
	return e.deps.Records.LocationIDs(sctx)
}

func (e *LocationsToSolr) GetDeletions(_ context.Context, _ domain.ExportFilter) ([]uint64, error) {
	return nil, nil
}

func (e *LocationsToSolr) ExportChunk(ctx context.Context, ids []uint64) (export.ChunkReport, error) {
	sctx, cancel := e.deps.sourceCtx(ctx)
	locations, err := e.deps.Records.FetchLocations(sctx, ids)
	cancel()
	if err != nil {
		return export.ChunkReport{}, err
	}

	docs := make([]solr.Document, 0, len(locations))
	for _, loc := range locations {
		docs = append(docs, solr.Document{
			"id":    fmt.Sprintf("%d", loc.ID),
			"code":  loc.Code,
			"label": loc.Label,
		})
	}
	if err := e.deps.Solr.Add(ctx, e.deps.Core, docs); err != nil {
		return export.ChunkReport{}, err
	}
	return export.ChunkReport{Processed: len(docs)}, nil
}

func (e *LocationsToSolr) DeleteChunk(ctx context.Context, ids []uint64) (export.ChunkReport, error) {
	if err := e.deps.Solr.DeleteByIDs(ctx, e.deps.Core, docIDs(ids)); err != nil {
		return export.ChunkReport{}, err
	}
	return export.ChunkReport{Processed: len(ids)}, nil
}

func (e *LocationsToSolr) Finalize(ctx context.Context) ([]string, error) {
	replWarnings, err := e.deps.Solr.Commit(ctx, e.deps.Core)
	warnings := make([]string, 0, len(replWarnings))
	for _, w := range replWarnings {
		warnings = append(warnings, w.String())
	}
	return warnings, err
}
