package source

import (
	"context"

	"github.com/libsync/exportd/internal/domain"
)

// RecordBatch is one page of records pulled from an ILS extract. A
// batch may mix record families; empty slices are fine.
type RecordBatch struct {
	Locations []domain.Location
	Bibs      []domain.BibRecord
	Items     []domain.ItemRecord
}

// Size returns the total record count across families.
func (b RecordBatch) Size() int {
	return len(b.Locations) + len(b.Bibs) + len(b.Items)
}

// Source defines the interface for ILS record extracts that feed the
// local mirror database the export pipeline reads from.
type Source interface {
	// GetSourceID returns the unique identifier for this source.
	GetSourceID() string

	// GetDisplayName returns a human-readable name for this source.
	GetDisplayName() string

	// FetchBatch fetches a batch of records starting from the given cursor.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - cursor: pagination cursor or empty for first page.
	//   - limit: maximum number of records to fetch.
	// Returns:
	//   - batch: page of records.
	//   - nextCursor: cursor for the next batch or empty if done.
	//   - err: non-nil if fetching fails.
	FetchBatch(ctx context.Context, cursor string, limit int) (batch RecordBatch, nextCursor string, err error)

	// SupportsIncremental returns true if this source emits only records
	// changed since the previous extract.
	SupportsIncremental() bool
}
