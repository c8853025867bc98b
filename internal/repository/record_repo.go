package repository

import (
	"context"
	"fmt"

	"github.com/libsync/exportd/internal/domain"
	"gorm.io/gorm"
)

// RecordRepository resolves export filters into source-database queries
// and fetches record payloads for chunk processing. ID listings are
// always ordered ascending by record ID so that chunk boundaries are
// deterministic and jobs are resumable by re-triggering.
type RecordRepository struct {
	db *gorm.DB
}

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// LocationExists checks a location code against the reference set.
func (r *RecordRepository) LocationExists(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Location{}).
		Where("code = ?", code).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// AllLocations returns the full location reference set ordered by code.
func (r *RecordRepository) AllLocations(ctx context.Context) ([]domain.Location, error) {
	var locations []domain.Location
	if err := r.db.WithContext(ctx).Order("code").Find(&locations).Error; err != nil {
		return nil, err
	}
	return locations, nil
}

// checkLocation validates the filter's location code when the active
// variant carries one.
func (r *RecordRepository) checkLocation(ctx context.Context, f domain.ExportFilter) error {
	if f.Kind != domain.FilterLocation && f.Kind != domain.FilterBibLocation {
		return nil
	}
	ok, err := r.LocationExists(ctx, f.LocationCode)
	if err != nil {
		return fmt.Errorf("failed to check location %q: %w", f.LocationCode, err)
	}
	if !ok {
		return fmt.Errorf("location %q: %w", f.LocationCode, domain.ErrUnknownLocation)
	}
	return nil
}

// ItemIDs returns the ascending IDs of item records matched by the
// filter for the export operation. Suppressed and deleted records are
// excluded; they are picked up by the deletion pass instead.
func (r *RecordRepository) ItemIDs(ctx context.Context, f domain.ExportFilter) ([]uint64, error) {
	if err := r.checkLocation(ctx, f); err != nil {
		return nil, err
	}

	q := r.db.WithContext(ctx).Model(&domain.ItemRecord{}).
		Where("suppressed = ?", false).
		Where("deletion_date IS NULL")

	switch f.Kind {
	case domain.FilterFull:
	case domain.FilterDateRange:
		q = q.Where("updated_at >= ? AND updated_at <= ?", f.DateFrom, f.DateTo)
	case domain.FilterLastExport:
		q = q.Where("updated_at >= ?", f.DateFrom)
	case domain.FilterRecordRange:
		q = q.Where("id >= ? AND id <= ?", f.RecordFrom, f.RecordTo)
	case domain.FilterLocation:
		q = q.Where("location_code = ?", f.LocationCode)
	default:
		return nil, fmt.Errorf("filter %q not supported for item records: %w",
			f.Kind, domain.ErrConfiguration)
	}

	return pluckIDs(q)
}

// ItemDeletionIDs returns the ascending IDs of item tombstones matched
// by the filter. Filters without a deletion interpretation yield an
// empty set.
func (r *RecordRepository) ItemDeletionIDs(ctx context.Context, f domain.ExportFilter) ([]uint64, error) {
	q := r.db.WithContext(ctx).Model(&domain.ItemRecord{}).
		Where("deletion_date IS NOT NULL")

	switch f.Kind {
	case domain.FilterDateRange:
		q = q.Where("deletion_date >= ? AND deletion_date <= ?", f.DateFrom, f.DateTo)
	case domain.FilterLastExport:
		q = q.Where("deletion_date >= ?", f.DateFrom)
	case domain.FilterRecordRange:
		q = q.Where("id >= ? AND id <= ?", f.RecordFrom, f.RecordTo)
	default:
		return nil, nil
	}

	return pluckIDs(q)
}

// BibIDs returns the ascending IDs of bib records matched by the filter
// for the export operation.
func (r *RecordRepository) BibIDs(ctx context.Context, f domain.ExportFilter) ([]uint64, error) {
	if err := r.checkLocation(ctx, f); err != nil {
		return nil, err
	}

	q := r.db.WithContext(ctx).Model(&domain.BibRecord{}).
		Where("suppressed = ?", false).
		Where("deletion_date IS NULL")

	switch f.Kind {
	case domain.FilterFull:
	case domain.FilterDateRange:
		q = q.Where("updated_at >= ? AND updated_at <= ?", f.DateFrom, f.DateTo)
	case domain.FilterLastExport:
		q = q.Where("updated_at >= ?", f.DateFrom)
	case domain.FilterRecordRange:
		q = q.Where("id >= ? AND id <= ?", f.RecordFrom, f.RecordTo)
	case domain.FilterLocation:
		q = q.Where("location_code = ?", f.LocationCode)
	case domain.FilterBibLocation:
		q = q.Where("location_code = ?", f.LocationCode)
		if f.OnlyNullItems {
			q = q.Where("id IN (?)", r.db.Model(&domain.ItemRecord{}).
				Select("bib_id").
				Where("location_code IS NULL").
				Where("deletion_date IS NULL"))
		}
	default:
		return nil, fmt.Errorf("filter %q not supported for bib records: %w",
			f.Kind, domain.ErrConfiguration)
	}

	return pluckIDs(q)
}

// BibDeletionIDs returns the ascending IDs of bib tombstones matched by
// the filter.
func (r *RecordRepository) BibDeletionIDs(ctx context.Context, f domain.ExportFilter) ([]uint64, error) {
	q := r.db.WithContext(ctx).Model(&domain.BibRecord{}).
		Where("deletion_date IS NOT NULL")

	switch f.Kind {
	case domain.FilterDateRange:
		q = q.Where("deletion_date >= ? AND deletion_date <= ?", f.DateFrom, f.DateTo)
	case domain.FilterLastExport:
		q = q.Where("deletion_date >= ?", f.DateFrom)
	case domain.FilterRecordRange:
		q = q.Where("id >= ? AND id <= ?", f.RecordFrom, f.RecordTo)
	default:
		return nil, nil
	}

	return pluckIDs(q)
}

// FetchItems loads item payloads for one chunk, ordered ascending.
func (r *RecordRepository) FetchItems(ctx context.Context, ids []uint64) ([]domain.ItemRecord, error) {
	if len(ids) == 0 {
		return []domain.ItemRecord{}, nil
	}
	var items []domain.ItemRecord
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch item records: %w", err)
	}
	return items, nil
}

// FetchBibs loads bib payloads for one chunk with their attached items
// preloaded, ordered ascending.
func (r *RecordRepository) FetchBibs(ctx context.Context, ids []uint64) ([]domain.BibRecord, error) {
	if len(ids) == 0 {
		return []domain.BibRecord{}, nil
	}
	var bibs []domain.BibRecord
	if err := r.db.WithContext(ctx).
		Preload("Items", "deletion_date IS NULL").
		Where("id IN ?", ids).
		Order("id").
		Find(&bibs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch bib records: %w", err)
	}
	return bibs, nil
}

// LocationIDs lists all location reference IDs, ordered ascending.
func (r *RecordRepository) LocationIDs(ctx context.Context) ([]uint64, error) {
	return pluckIDs(r.db.WithContext(ctx).Model(&domain.Location{}))
}

// FetchLocations loads location payloads for one chunk, ordered ascending.
func (r *RecordRepository) FetchLocations(ctx context.Context, ids []uint64) ([]domain.Location, error) {
	if len(ids) == 0 {
		return []domain.Location{}, nil
	}
	var locations []domain.Location
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id").
		Find(&locations).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch locations: %w", err)
	}
	return locations, nil
}

func pluckIDs(q *gorm.DB) ([]uint64, error) {
	var ids []uint64
	if err := q.Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list record IDs: %w", err)
	}
	return ids, nil
}
