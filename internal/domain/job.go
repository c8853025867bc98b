package domain

import "time"

// JobStatus represents the lifecycle state of an export job.
// Values include JobStatusPending, JobStatusRunning, JobStatusSuccessful,
// JobStatusFailed, and JobStatusPartiallyFailed.
type JobStatus string

const (
	JobStatusPending         JobStatus = "pending"
	JobStatusRunning         JobStatus = "running"
	JobStatusSuccessful      JobStatus = "successful"
	JobStatusFailed          JobStatus = "failed"
	JobStatusPartiallyFailed JobStatus = "partially_failed"
)

// Terminal reports whether a job in this status can no longer change.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSuccessful, JobStatusFailed, JobStatusPartiallyFailed:
		return true
	}
	return false
}

// ChunkOp distinguishes the two operations a chunk can perform against
// the target stores.
type ChunkOp string

const (
	OpExport   ChunkOp = "export"
	OpDeletion ChunkOp = "deletion"
)

// ChunkResult is the outcome class of one processed chunk.
type ChunkResult string

const (
	ChunkSuccess ChunkResult = "success"
	ChunkError   ChunkResult = "error"
	ChunkWarning ChunkResult = "warning"
)

// ExportJob represents one triggered run of the export pipeline for a
// given export type and filter. Mutated only by the job executor; a job
// in a terminal status is never modified again.
type ExportJob struct {
	ID           string     `gorm:"type:text;primaryKey" json:"id"`
	ExportType   string     `gorm:"type:text;not null;index" json:"export_type"`
	FilterKind   FilterKind `gorm:"type:text;not null" json:"filter_kind"`
	FilterParams string     `gorm:"type:text" json:"filter_params,omitempty"`
	Username     string     `gorm:"type:text;not null" json:"username"`
	Status       JobStatus  `gorm:"type:text;index;default:pending" json:"status"`
	TotalRecords int        `gorm:"default:0" json:"total_records"`
	TotalChunks  int        `gorm:"default:0" json:"total_chunks"`
	Errors       int        `gorm:"default:0" json:"errors"`
	Warnings     int        `gorm:"default:0" json:"warnings"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	Outcomes []ChunkOutcome `gorm:"foreignKey:JobID" json:"outcomes,omitempty"`
}

// TableName returns the database table name for ExportJob.
func (ExportJob) TableName() string {
	return "export_jobs"
}

// ChunkOutcome records the result of one chunk within a job. Chunks are
// addressable by their record-ID bounds, so a re-triggered job covering
// the same filter produces comparable outcomes.
type ChunkOutcome struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	JobID      string      `gorm:"type:text;not null;index" json:"job_id"`
	Seq        int         `gorm:"not null" json:"seq"`
	Op         ChunkOp     `gorm:"type:text;not null" json:"op"`
	FromID     uint64      `json:"from_id"`
	ToID       uint64      `json:"to_id"`
	Count      int         `json:"count"`
	Result     ChunkResult `gorm:"type:text" json:"result"`
	Detail     string      `gorm:"type:text" json:"detail,omitempty"`
	FinishedAt time.Time   `json:"finished_at"`
}

// TableName returns the database table name for ChunkOutcome.
func (ChunkOutcome) TableName() string {
	return "export_chunk_outcomes"
}
