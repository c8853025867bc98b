package export

import (
	"fmt"

	"github.com/libsync/exportd/internal/domain"
)

// Chunk splits an ordered ID set into contiguous slices of at most
// maxSize IDs each. Input order is preserved, every ID lands in
// exactly one chunk, and only the final chunk may be short.
func Chunk(ids []uint64, maxSize int) ([][]uint64, error) {
	if maxSize < 1 {
		return nil, fmt.Errorf("%w: chunk size must be at least 1, got %d", domain.ErrConfiguration, maxSize)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	chunks := make([][]uint64, 0, (len(ids)+maxSize-1)/maxSize)
	for start := 0; start < len(ids); start += maxSize {
		end := start + maxSize
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks, nil
}
