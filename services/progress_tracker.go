package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/utils/cache"
)

// TTL configurations for job states
const (
	JobStateTTLSuccess = 1 * time.Hour  // 1 hour for successful jobs
	JobStateTTLFailure = 24 * time.Hour // 24 hours for failed jobs
	JobStateTTLPending = 24 * time.Hour // 24 hours for pending/processing jobs
)

// ImportProgressEvent represents a progress update sent to clients via SSE
type ImportProgressEvent struct {
	Type  string `json:"type"` // "started", "progress", "complete", "error"
	JobID string `json:"job_id"`

	Progress int    `json:"progress"` // 0-100
	Message  string `json:"message"`

	// Row counters
	TotalRows     int `json:"total_rows,omitempty"`
	ProcessedRows int `json:"processed_rows,omitempty"`
	CreatedCount  int `json:"created_count,omitempty"`
	SkippedCount  int `json:"skipped_count,omitempty"`

	// Error info (for error events)
	ErrorMessage string `json:"error_message,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// ProgressTracker manages import job state in Redis so SSE subscribers can
// follow a running import
type ProgressTracker struct {
	cache *cache.RedisCache
}

// NewProgressTracker creates a new progress tracker instance
func NewProgressTracker(redisCache *cache.RedisCache) *ProgressTracker {
	return &ProgressTracker{cache: redisCache}
}

// CreateJob creates a new import job and marks it as active for the admin.
// An admin can run only one import at a time.
func (pt *ProgressTracker) CreateJob(ctx context.Context, userID, schoolID uint, totalRows int) (*model.ImportJob, error) {
	jobID := fmt.Sprintf("%d_%d", userID, time.Now().Unix())

	activeKey := fmt.Sprintf(model.RedisKeyActiveImport, userID)
	existingJobID, err := pt.cache.Get(ctx, activeKey)
	if err == nil && existingJobID != "" {
		return nil, fmt.Errorf("user already has an active import job: %s", existingJobID)
	}

	job := &model.ImportJob{
		JobID:     jobID,
		UserID:    userID,
		SchoolID:  schoolID,
		Status:    model.JobStatusPending,
		Progress:  0,
		Message:   "Import queued",
		TotalRows: totalRows,
		StartedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	jobKey := fmt.Sprintf(model.RedisKeyImportJob, jobID)
	if err := pt.cache.SetJSON(ctx, jobKey, job, JobStateTTLPending); err != nil {
		return nil, fmt.Errorf("failed to save job state: %w", err)
	}

	if err := pt.cache.Set(ctx, activeKey, jobID, JobStateTTLPending); err != nil {
		pt.cache.Delete(ctx, jobKey)
		return nil, fmt.Errorf("failed to mark job as active: %w", err)
	}

	return job, nil
}

// UpdateProgress applies an event to the stored job state
func (pt *ProgressTracker) UpdateProgress(ctx context.Context, jobID string, event ImportProgressEvent) error {
	job, err := pt.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Progress = event.Progress
	if event.Message != "" {
		job.Message = event.Message
	}
	job.ProcessedRows = event.ProcessedRows
	job.CreatedCount = event.CreatedCount
	job.SkippedCount = event.SkippedCount
	job.UpdatedAt = time.Now()

	if event.TotalRows > 0 {
		job.TotalRows = event.TotalRows
	}

	switch event.Type {
	case "started":
		job.Status = model.JobStatusProcessing
	case "complete":
		job.Status = model.JobStatusCompleted
		job.Progress = 100
		now := time.Now()
		job.CompletedAt = &now
	case "error":
		job.Status = model.JobStatusFailed
		job.Error = event.ErrorMessage
		now := time.Now()
		job.CompletedAt = &now
	}

	ttl := JobStateTTLPending
	if job.Status == model.JobStatusCompleted {
		ttl = JobStateTTLSuccess
	} else if job.Status == model.JobStatusFailed {
		ttl = JobStateTTLFailure
	}

	jobKey := fmt.Sprintf(model.RedisKeyImportJob, jobID)
	if err := pt.cache.SetJSON(ctx, jobKey, job, ttl); err != nil {
		return fmt.Errorf("failed to update job state: %w", err)
	}

	// Clear active job once the import settles
	if job.Status == model.JobStatusCompleted || job.Status == model.JobStatusFailed {
		activeKey := fmt.Sprintf(model.RedisKeyActiveImport, job.UserID)
		pt.cache.Delete(ctx, activeKey)
	}

	return nil
}

// GetJob retrieves job state from Redis
func (pt *ProgressTracker) GetJob(ctx context.Context, jobID string) (*model.ImportJob, error) {
	jobKey := fmt.Sprintf(model.RedisKeyImportJob, jobID)

	var job model.ImportJob
	if err := pt.cache.GetJSON(ctx, jobKey, &job); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, fmt.Errorf("job not found or expired: %s", jobID)
		}
		return nil, fmt.Errorf("failed to get job state: %w", err)
	}

	return &job, nil
}

// GetActiveJob returns the active import job ID for a user (if any)
func (pt *ProgressTracker) GetActiveJob(ctx context.Context, userID uint) (string, error) {
	activeKey := fmt.Sprintf(model.RedisKeyActiveImport, userID)
	jobID, err := pt.cache.Get(ctx, activeKey)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return jobID, nil
}

// ClearActiveJob removes the active import reference for a user
func (pt *ProgressTracker) ClearActiveJob(ctx context.Context, userID uint) error {
	activeKey := fmt.Sprintf(model.RedisKeyActiveImport, userID)
	return pt.cache.Delete(ctx, activeKey)
}

// ImportProgress converts row counters to a 0-100 percentage
func ImportProgress(processed, total int) int {
	if total <= 0 {
		return 0
	}
	progress := processed * 100 / total
	if progress > 100 {
		progress = 100
	}
	return progress
}
