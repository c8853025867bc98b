package domain

import "errors"

// Error taxonomy for the export pipeline. Trigger-time failures
// (ErrConfiguration, ErrInvalidRange) prevent a job from starting;
// resolution-time failures (ErrUnknownLocation, ErrNoPriorExport) fail
// the job before any chunk runs. Chunk-level failures are carried as
// ChunkOutcome values, not as errors.
var (
	// ErrConfiguration covers invalid chunk sizes, malformed filters and
	// other bad static configuration.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrInvalidRange is returned for a range filter whose lower bound
	// exceeds its upper bound.
	ErrInvalidRange = errors.New("range lower bound exceeds upper bound")

	// ErrUnknownLocation is returned when a location filter code does not
	// resolve against the location reference set.
	ErrUnknownLocation = errors.New("unknown location code")

	// ErrNoPriorExport is returned for a last-export filter when the
	// export type has never completed successfully.
	ErrNoPriorExport = errors.New("export type has no prior successful run")

	// ErrUnknownExportType is returned when a job names an export type
	// that is not registered.
	ErrUnknownExportType = errors.New("unknown export type")
)
