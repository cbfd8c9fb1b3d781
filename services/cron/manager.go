package cron

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/schoolhub-io/schoolhub/metrics"
	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/utils/cache"
)

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron  *cron.Cron
	db    *gorm.DB
	cache *cache.RedisCache
}

// NewCronManager creates a new cron manager. cache may be nil when redis is
// not configured; jobs that need it skip themselves.
func NewCronManager(db *gorm.DB, cache *cache.RedisCache) *CronManager {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronManager{
		cron:  c,
		db:    db,
		cache: cache,
	}
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	log.Println("Starting cron jobs...")

	// Register all jobs
	if err := m.registerJobs(); err != nil {
		return err
	}

	// Start the cron scheduler
	m.cron.Start()

	log.Println("Cron jobs started successfully")
	return nil
}

// Stop stops all cron jobs
func (m *CronManager) Stop() {
	log.Println("Stopping cron jobs...")
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Println("Cron jobs stopped")
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	// 1. Every 30 minutes: Expire stale invoices
	_, err := m.cron.AddFunc("0 */30 * * * *", func() {
		m.logJobStart("expire_stale_invoices")
		m.ExpireStaleInvoices()
	})
	if err != nil {
		return err
	}

	// 2. Every hour: Refresh cached attendance summaries
	_, err = m.cron.AddFunc("0 0 * * * *", func() {
		m.logJobStart("refresh_attendance_summaries")
		m.RefreshAttendanceSummaries()
	})
	if err != nil {
		return err
	}

	// 3. Daily at 2 AM: Cleanup old data
	_, err = m.cron.AddFunc("0 0 2 * * *", func() {
		m.logJobStart("cleanup_old_data")
		m.CleanupOldData()
	})
	if err != nil {
		return err
	}

	// 4. Daily at 3:30 AM: Upload report archives
	_, err = m.cron.AddFunc("0 30 3 * * *", func() {
		m.logJobStart("upload_report_archives")
		m.UploadReportArchives()
	})
	if err != nil {
		return err
	}

	log.Println("All cron jobs registered successfully")
	return nil
}

// logJobStart logs the start of a cron job
func (m *CronManager) logJobStart(jobName string) {
	log.Printf("[CRON] Starting job: %s at %s", jobName, time.Now().Format(time.RFC3339))

	// Log to database
	cronLog := model.CronJobLog{
		JobName:   jobName,
		Status:    "running",
		StartedAt: time.Now(),
		Metadata:  "{}",
	}
	m.db.Create(&cronLog)
}

// logJobComplete logs successful completion of a cron job
func (m *CronManager) logJobComplete(jobName string, message string) {
	log.Printf("[CRON] Completed job: %s - %s", jobName, message)
	metrics.CronJobRunsTotal.WithLabelValues(jobName, "completed").Inc()

	m.finishJobLog(jobName, map[string]interface{}{
		"status":  "completed",
		"message": message,
	})
}

// logJobError logs a cron job error
func (m *CronManager) logJobError(jobName string, err error) {
	log.Printf("[CRON] Error in job: %s - %v", jobName, err)
	metrics.CronJobRunsTotal.WithLabelValues(jobName, "failed").Inc()

	m.finishJobLog(jobName, map[string]interface{}{
		"status":    "failed",
		"error_msg": err.Error(),
	})
}

// finishJobLog closes the latest running log entry for the job, stamping the
// completion time and duration
func (m *CronManager) finishJobLog(jobName string, updates map[string]interface{}) {
	var entry model.CronJobLog
	err := m.db.Where("job_name = ? AND status = ?", jobName, "running").
		Order("started_at DESC").
		First(&entry).Error
	if err != nil {
		return
	}

	now := time.Now()
	updates["completed_at"] = now
	updates["duration"] = int(now.Sub(entry.StartedAt).Milliseconds())
	m.db.Model(&entry).Updates(updates)
}
