package export

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/libsync/exportd/internal/domain"
)

// ChunkReport summarizes one processed chunk. Warnings cover partial
// degradations (a record skipped, a follower that failed to sync)
// that did not stop the chunk from completing.
type ChunkReport struct {
	Processed int
	Warnings  []string
}

// Exporter is one registered export type. GetRecords and GetDeletions
// resolve a filter into ordered ID sets; ExportChunk and DeleteChunk
// process one chunk each and must be safe to call concurrently with
// other chunks of the same job. Finalize runs once after all chunks,
// typically to commit the index.
type Exporter interface {
	Name() string
	MaxRecChunk() int
	MaxDelChunk() int
	GetRecords(ctx context.Context, f domain.ExportFilter) ([]uint64, error)
	GetDeletions(ctx context.Context, f domain.ExportFilter) ([]uint64, error)
	ExportChunk(ctx context.Context, ids []uint64) (ChunkReport, error)
	DeleteChunk(ctx context.Context, ids []uint64) (ChunkReport, error)
	Finalize(ctx context.Context) ([]string, error)
}

// Registry maps export type names to exporters.
type Registry struct {
	mu        sync.RWMutex
	exporters map[string]Exporter
}

func NewRegistry() *Registry {
	return &Registry{exporters: make(map[string]Exporter)}
}

func (r *Registry) Register(e Exporter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exporters[e.Name()] = e
}

func (r *Registry) Get(name string) (Exporter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.exporters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownExportType, name)
	}
	return e, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.exporters))
	for name := range r.exporters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
