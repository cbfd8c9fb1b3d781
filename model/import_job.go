package model

import "time"

// ImportJobStatus represents the status of a bulk user import job
type ImportJobStatus string

const (
	JobStatusPending    ImportJobStatus = "pending"
	JobStatusProcessing ImportJobStatus = "processing"
	JobStatusCompleted  ImportJobStatus = "completed"
	JobStatusFailed     ImportJobStatus = "failed"
	JobStatusCancelled  ImportJobStatus = "cancelled"
)

// ImportJob represents the state of a bulk user import stored in Redis
type ImportJob struct {
	JobID    string          `json:"job_id"`
	UserID   uint            `json:"user_id"` // admin who started the import
	SchoolID uint            `json:"school_id"`
	Status   ImportJobStatus `json:"status"`
	Progress int             `json:"progress"` // 0-100
	Message  string          `json:"message"`

	// Row tracking
	TotalRows     int `json:"total_rows"`
	ProcessedRows int `json:"processed_rows"`
	CreatedCount  int `json:"created_count"`
	SkippedCount  int `json:"skipped_count"`

	// Error tracking
	Error string `json:"error,omitempty"`

	// Timestamps
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Redis key patterns for import jobs
const (
	// RedisKeyImportJob stores the full job state as JSON
	// Usage: fmt.Sprintf(RedisKeyImportJob, jobID)
	RedisKeyImportJob = "import:state:%s"

	// RedisKeyActiveImport tracks the active import job ID for a user
	// Usage: fmt.Sprintf(RedisKeyActiveImport, userID)
	RedisKeyActiveImport = "import:active:%d"
)
