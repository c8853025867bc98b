package domain

import (
	"fmt"
	"time"
)

// FilterKind identifies which export filter variant is active for a job.
type FilterKind string

const (
	FilterFull        FilterKind = "full_export"
	FilterDateRange   FilterKind = "date_range"
	FilterRecordRange FilterKind = "record_range"
	FilterLocation    FilterKind = "location"
	FilterBibLocation FilterKind = "bib_location"
	FilterLastExport  FilterKind = "last_export"
)

// ExportFilter scopes the record set an export job operates on. Exactly
// one variant is active per job; only the fields belonging to the active
// Kind are meaningful.
type ExportFilter struct {
	Kind FilterKind

	// DateRange / LastExport bounds, inclusive. For LastExport, DateFrom
	// is resolved by the executor from the newest successful job of the
	// same export type and DateTo is the trigger time.
	DateFrom time.Time
	DateTo   time.Time

	// RecordRange bounds, inclusive.
	RecordFrom uint64
	RecordTo   uint64

	// Location / BibLocation code.
	LocationCode string

	// BibLocation refinement: restrict to bibs whose attached items have
	// no location set.
	OnlyNullItems bool
}

// FullFilter returns a filter matching every record of the export type.
func FullFilter() ExportFilter {
	return ExportFilter{Kind: FilterFull}
}

// DateRangeFilter returns a filter matching records last modified within
// [from, to]. Returns ErrInvalidRange when from is after to.
func DateRangeFilter(from, to time.Time) (ExportFilter, error) {
	if from.After(to) {
		return ExportFilter{}, fmt.Errorf("date range %s..%s: %w",
			from.Format(time.RFC3339), to.Format(time.RFC3339), ErrInvalidRange)
	}
	return ExportFilter{Kind: FilterDateRange, DateFrom: from, DateTo: to}, nil
}

// RecordRangeFilter returns a filter matching records whose numeric ID
// falls within [from, to]. Returns ErrInvalidRange when from exceeds to.
func RecordRangeFilter(from, to uint64) (ExportFilter, error) {
	if from > to {
		return ExportFilter{}, fmt.Errorf("record range %d..%d: %w", from, to, ErrInvalidRange)
	}
	return ExportFilter{Kind: FilterRecordRange, RecordFrom: from, RecordTo: to}, nil
}

// LocationFilter returns a filter matching records tagged with the given
// location code. The code is validated against the location reference
// set when the predicate is resolved, not here.
func LocationFilter(code string) ExportFilter {
	return ExportFilter{Kind: FilterLocation, LocationCode: code}
}

// BibLocationFilter returns a filter matching bib records at the given
// location, optionally restricted to bibs whose items have no location.
func BibLocationFilter(code string, onlyNullItems bool) ExportFilter {
	return ExportFilter{
		Kind:          FilterBibLocation,
		LocationCode:  code,
		OnlyNullItems: onlyNullItems,
	}
}

// LastExportFilter returns a filter matching records modified since the
// newest successful run of the same export type.
func LastExportFilter() ExportFilter {
	return ExportFilter{Kind: FilterLastExport}
}

// Validate checks the invariants of the active variant.
// Returns:
//   - error: ErrInvalidRange or ErrConfiguration when a bound or the
//     Kind itself is invalid; nil otherwise.
func (f ExportFilter) Validate() error {
	switch f.Kind {
	case FilterFull, FilterLastExport:
		return nil
	case FilterDateRange:
		if f.DateFrom.After(f.DateTo) {
			return fmt.Errorf("date range: %w", ErrInvalidRange)
		}
		return nil
	case FilterRecordRange:
		if f.RecordFrom > f.RecordTo {
			return fmt.Errorf("record range: %w", ErrInvalidRange)
		}
		return nil
	case FilterLocation, FilterBibLocation:
		if f.LocationCode == "" {
			return fmt.Errorf("empty location code: %w", ErrConfiguration)
		}
		return nil
	default:
		return fmt.Errorf("unknown filter kind %q: %w", f.Kind, ErrConfiguration)
	}
}

// Params renders the variant-specific parameters for display and for the
// filter_params column on the job row.
func (f ExportFilter) Params() string {
	switch f.Kind {
	case FilterDateRange, FilterLastExport:
		return fmt.Sprintf("%s to %s",
			f.DateFrom.Format("2006-01-02 15:04:05"),
			f.DateTo.Format("2006-01-02 15:04:05"))
	case FilterRecordRange:
		return fmt.Sprintf("%d to %d", f.RecordFrom, f.RecordTo)
	case FilterLocation:
		return f.LocationCode
	case FilterBibLocation:
		if f.OnlyNullItems {
			return f.LocationCode + " (only null items)"
		}
		return f.LocationCode
	default:
		return ""
	}
}
