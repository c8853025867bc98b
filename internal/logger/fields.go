package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields propagated through the call chain.
const (
	// FieldJobID is the export job ID (UUID)
	FieldJobID = "job_id"

	// FieldChunkID is the chunk label within a job (e.g. "export-003")
	FieldChunkID = "chunk_id"

	// FieldExportType is the export type name (e.g. "ItemsToSolr")
	FieldExportType = "export_type"

	// FieldCore is the Solr core name
	FieldCore = "core"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// Standard metric fields used for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
