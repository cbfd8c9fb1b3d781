package cron

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/services"
	"github.com/schoolhub-io/schoolhub/services/spaces"
)

const (
	// attendanceSummaryTTL caps how long a cached course summary lives in
	// redis; it spans two refresh cycles so one missed run keeps serving
	attendanceSummaryTTL = 2 * time.Hour

	// defaultReportRetentionDays is how long report archives stay in object
	// storage, overridable via the reports.retention_days app setting
	defaultReportRetentionDays = 90
)

// ExpireStaleInvoices moves unpaid invoices past the expiry window into the
// expired status
// Runs every 30 minutes
func (m *CronManager) ExpireStaleInvoices() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	jobName := "expire_stale_invoices"

	// Expiry only touches the database, no provider credentials needed
	billing := services.NewBillingService(m.db, nil, "")

	expired, err := billing.ExpireStaleInvoices(ctx, time.Now())
	if err != nil {
		m.logJobError(jobName, err)
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("Expired %d stale invoices", expired))
}

// RefreshAttendanceSummaries recomputes per-student attendance percentages
// for every course in a current term and caches them in redis
// Runs every hour
func (m *CronManager) RefreshAttendanceSummaries() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	jobName := "refresh_attendance_summaries"

	if m.cache == nil {
		m.logJobComplete(jobName, "Skipped: redis not configured")
		return
	}

	now := time.Now()

	courses, err := m.currentTermCourses(ctx, now)
	if err != nil {
		m.logJobError(jobName, err)
		return
	}

	reports := services.NewReportService(m.db)

	refreshed := 0
	for _, course := range courses {
		report, err := reports.BuildCourseReport(ctx, course.ID, now)
		if err != nil {
			log.Printf("[CRON] Failed to build summary for course %d: %v", course.ID, err)
			continue
		}

		summary := model.CourseAttendanceSummary{
			CourseID:      report.CourseID,
			CourseName:    report.CourseName,
			ScheduledDays: report.ScheduledDays,
			Rows:          make([]model.AttendanceSummaryRow, 0, len(report.Rows)),
			RefreshedAt:   now,
		}
		for _, row := range report.Rows {
			summary.Rows = append(summary.Rows, model.AttendanceSummaryRow{
				UserID:            row.UserID,
				IDN:               row.IDN,
				Username:          row.Username,
				AttendancePercent: row.AttendancePercent,
			})
		}

		key := fmt.Sprintf(model.RedisKeyAttendanceSummary, course.ID)
		if err := m.cache.SetJSON(ctx, key, summary, attendanceSummaryTTL); err != nil {
			log.Printf("[CRON] Failed to cache summary for course %d: %v", course.ID, err)
			continue
		}
		refreshed++
	}

	m.logJobComplete(jobName, fmt.Sprintf("Refreshed %d of %d course summaries", refreshed, len(courses)))
}

// CleanupOldData purges expired and stale rows to keep the database clean
// Runs daily at 2 AM
func (m *CronManager) CleanupOldData() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	jobName := "cleanup_old_data"

	totalCleaned := 0

	// 1. Blacklist entries for JWTs that have expired on their own
	result := m.db.WithContext(ctx).Unscoped().
		Where("expires_at < ?", time.Now()).
		Delete(&model.JWTTokenBlacklist{})
	if result.Error != nil {
		log.Printf("[CRON] Failed to clean token blacklist: %v", result.Error)
	} else {
		log.Printf("[CRON] Cleaned %d expired blacklist entries", result.RowsAffected)
		totalCleaned += int(result.RowsAffected)
	}

	// 2. Used or expired password reset tokens
	result = m.db.WithContext(ctx).Unscoped().
		Where("used_at IS NOT NULL OR expires_at < ?", time.Now()).
		Delete(&model.PasswordResetToken{})
	if result.Error != nil {
		log.Printf("[CRON] Failed to clean password resets: %v", result.Error)
	} else {
		log.Printf("[CRON] Cleaned %d spent password resets", result.RowsAffected)
		totalCleaned += int(result.RowsAffected)
	}

	// 3. Old cron job logs (keep only last 90 days)
	cutoffLogs := time.Now().Add(-90 * 24 * time.Hour)
	result = m.db.WithContext(ctx).Unscoped().
		Where("created_at < ?", cutoffLogs).
		Delete(&model.CronJobLog{})
	if result.Error != nil {
		log.Printf("[CRON] Failed to clean cron logs: %v", result.Error)
	} else {
		log.Printf("[CRON] Cleaned %d old cron logs", result.RowsAffected)
		totalCleaned += int(result.RowsAffected)
	}

	// 4. Old admin audit logs (keep only last 180 days)
	cutoffAudit := time.Now().Add(-180 * 24 * time.Hour)
	result = m.db.WithContext(ctx).Unscoped().
		Where("created_at < ?", cutoffAudit).
		Delete(&model.AdminAuditLog{})
	if result.Error != nil {
		log.Printf("[CRON] Failed to clean audit logs: %v", result.Error)
	} else {
		log.Printf("[CRON] Cleaned %d old audit logs", result.RowsAffected)
		totalCleaned += int(result.RowsAffected)
	}

	// 5. Read notifications older than 90 days
	notifications := services.NewNotificationService(m.db)
	cleaned, err := notifications.CleanupOldNotifications(ctx, 90*24*time.Hour)
	if err != nil {
		log.Printf("[CRON] Failed to clean notifications: %v", err)
	} else {
		log.Printf("[CRON] Cleaned %d old notifications", cleaned)
		totalCleaned += int(cleaned)
	}

	m.logJobComplete(jobName, fmt.Sprintf("Cleaned up %d total records", totalCleaned))
}

// UploadReportArchives exports an XLSX report for every course in a current
// term and archives it in object storage, then prunes archives past the
// retention window
// Runs daily at 3:30 AM
func (m *CronManager) UploadReportArchives() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	jobName := "upload_report_archives"

	client, err := spaces.NewClientFromGlobalConfig()
	if err != nil {
		m.logJobComplete(jobName, "Skipped: object storage not configured")
		return
	}

	// Reports cover data through the end of the previous day
	now := time.Now()
	y, mo, d := now.UTC().Date()
	asOf := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC).Add(-time.Second)
	day := asOf.Format("2006-01-02")

	courses, err := m.currentTermCourses(ctx, now)
	if err != nil {
		m.logJobError(jobName, err)
		return
	}

	reports := services.NewReportService(m.db)

	uploaded := 0
	for _, course := range courses {
		data, fileName, err := reports.ExportCourseReportXLSX(ctx, course.ID, asOf)
		if err != nil {
			log.Printf("[CRON] Failed to export report for course %d: %v", course.ID, err)
			continue
		}

		key := fmt.Sprintf("reports/%s/%s", day, fileName)
		if _, err := client.UploadBytes(ctx, key, data, spaces.GetContentType(fileName)); err != nil {
			log.Printf("[CRON] Failed to upload report for course %d: %v", course.ID, err)
			continue
		}
		uploaded++
	}

	retentionDays := m.intSetting(ctx, "reports.retention_days", defaultReportRetentionDays)
	pruned, err := client.PruneOlderThan(ctx, "reports/", now.AddDate(0, 0, -retentionDays))
	if err != nil {
		log.Printf("[CRON] Failed to prune old report archives: %v", err)
	}

	m.logJobComplete(jobName, fmt.Sprintf("Uploaded %d report archives, pruned %d old objects", uploaded, pruned))
}

// currentTermCourses lists courses whose term covers now
func (m *CronManager) currentTermCourses(ctx context.Context, now time.Time) ([]model.Course, error) {
	var courses []model.Course
	err := m.db.WithContext(ctx).
		Joins("JOIN terms ON terms.id = courses.term_id").
		Where("terms.start_date <= ? AND terms.end_date >= ? AND terms.deleted_at IS NULL", now, now).
		Find(&courses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list current-term courses: %w", err)
	}
	return courses, nil
}

// intSetting reads an integer app setting, falling back on absence or a
// non-numeric value
func (m *CronManager) intSetting(ctx context.Context, key string, fallback int) int {
	var setting model.AppSetting
	if err := m.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		return fallback
	}
	value, err := strconv.Atoi(setting.Value)
	if err != nil {
		return fallback
	}
	return value
}
