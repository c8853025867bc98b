// Package exporters contains the concrete export types. Each exporter
// binds one record family from the source database to one Solr core
// and registers under a stable name used to trigger jobs.
package exporters

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/libsync/exportd/internal/cache"
	"github.com/libsync/exportd/internal/config"
	"github.com/libsync/exportd/internal/repository"
	"github.com/libsync/exportd/internal/solr"
)

// Default chunk sizing. Export chunks are wider than deletion chunks
// because deletes fan out into per-ID index operations.
const (
	defaultMaxRecChunk = 3000
	defaultMaxDelChunk = 1000
)

// Deps bundles what every exporter needs: the source repository, the
// Solr client with its target core, and the record cache. Cache may be
// nil to run without one.
type Deps struct {
	Records *repository.RecordRepository
	Solr    *solr.Client
	Cache   *cache.RecordCache
	Core    config.SolrCoreConfig

	// SourceTimeout bounds each source-database call; zero disables it.
	SourceTimeout time.Duration
}

// sourceCtx derives the context used for source-database calls.
func (d *Deps) sourceCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.SourceTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.SourceTimeout)
}

// chunkSize resolves the effective chunk size for an exporter from the
// configured per-type overrides.
func chunkSize(overrides map[string]int, name string, fallback int) int {
	if size, ok := overrides[name]; ok {
		return size
	}
	return fallback
}

func docIDs(ids []uint64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatUint(id, 10)
	}
	return out
}

// cachePut writes one record payload to the cache, degrading to a
// warning string on failure.
func cachePut(ctx context.Context, c *cache.RecordCache, kind string, id uint64, payload interface{}, warnings []string) []string {
	if c == nil {
		return warnings
	}
	if err := c.Put(ctx, kind, id, payload); err != nil {
		warnings = append(warnings, fmt.Sprintf("cache write for %s %d failed: %v", kind, id, err))
	}
	return warnings
}

// cacheDelete drops cached payloads, degrading to a warning on failure.
func cacheDelete(ctx context.Context, c *cache.RecordCache, kind string, ids []uint64, warnings []string) []string {
	if c == nil {
		return warnings
	}
	if err := c.Delete(ctx, kind, ids); err != nil {
		warnings = append(warnings, fmt.Sprintf("cache delete for %s records failed: %v", kind, err))
	}
	return warnings
}
