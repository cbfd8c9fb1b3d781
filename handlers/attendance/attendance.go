package attendance

import (
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/services"
	"github.com/schoolhub-io/schoolhub/utils/cache"
	"github.com/schoolhub-io/schoolhub/utils/middleware"
	"github.com/schoolhub-io/schoolhub/utils/response"
	"gorm.io/gorm"
)

// summaryCacheTTL matches the cron refresher's window so a handler-side fill
// ages out on the same schedule
const summaryCacheTTL = 2 * time.Hour

// AttendanceHandler handles attendance marking and summaries
type AttendanceHandler struct {
	db        *gorm.DB
	cache     *cache.RedisCache
	gradebook *services.GradebookService
}

// NewAttendanceHandler creates a new attendance handler. cache may be nil when
// redis is not configured; summaries are then computed per request.
func NewAttendanceHandler(db *gorm.DB, redisCache *cache.RedisCache) *AttendanceHandler {
	return &AttendanceHandler{
		db:        db,
		cache:     redisCache,
		gradebook: services.NewGradebookService(db),
	}
}

// ToggleRequest represents the request body for toggling a day's attendance.
// Date accepts "2006-01-02" or RFC3339 and defaults to today.
type ToggleRequest struct {
	UserID uint   `json:"user_id" validate:"required,min=1"`
	Date   string `json:"date"`
}

// Toggle handles POST /api/v1/courses/:id/attendance/toggle.
// Marking an already-marked day unmarks it.
func (h *AttendanceHandler) Toggle(c *fiber.Ctx) error {
	caller, ok := middleware.GetUser(c)
	if !ok || caller == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !caller.IsAdmin && !caller.IsInstructor {
		return response.Forbidden(c, "Only instructors can mark attendance")
	}

	var course model.Course
	if err := h.db.Where("school_id = ?", caller.SchoolID).
		First(&course, c.Params("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	var req ToggleRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.UserID == 0 {
		return response.BadRequest(c, "user_id is required")
	}

	at := time.Now().UTC()
	if req.Date != "" {
		parsed, err := parseDate(req.Date)
		if err != nil {
			return response.BadRequest(c, "Invalid date, use YYYY-MM-DD")
		}
		at = parsed
	}

	// Only registered students can be marked
	var registered int64
	if err := h.db.Model(&model.Registration{}).
		Where("user_id = ? AND course_id = ?", req.UserID, course.ID).
		Count(&registered).Error; err != nil {
		return response.InternalServerError(c, "Failed to verify registration")
	}
	if registered == 0 {
		return response.BadRequest(c, "User is not registered for this course")
	}

	marked, err := h.gradebook.ToggleAttendance(c.Context(), req.UserID, at, &caller.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to toggle attendance")
	}

	// The cached roster summary is stale now; drop it so the next read
	// recomputes instead of serving the old percentages
	if h.cache != nil {
		key := fmt.Sprintf(model.RedisKeyAttendanceSummary, course.ID)
		if err := h.cache.Delete(c.Context(), key); err != nil {
			log.Printf("Failed to invalidate attendance summary for course %d: %v", course.ID, err)
		}
	}

	return response.Success(c, fiber.Map{
		"user_id": req.UserID,
		"date":    at.Format("2006-01-02"),
		"marked":  marked,
	})
}

// MyAttendance handles GET /api/v1/attendance/mine.
// With course_id the attended days are paired with the course's attendance
// percentage; without it only the day list is returned.
func (h *AttendanceHandler) MyAttendance(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	schoolID, _ := middleware.GetSchoolID(c)

	days, err := h.gradebook.AttendedDays(c.Context(), userID)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch attendance")
	}

	formatted := make([]string, 0, len(days))
	for _, d := range days {
		formatted = append(formatted, d.Format("2006-01-02"))
	}

	result := fiber.Map{
		"attended_days": formatted,
		"total_days":    len(formatted),
	}

	if courseID := c.QueryInt("course_id"); courseID > 0 {
		var course model.Course
		if err := h.db.Where("school_id = ?", schoolID).
			First(&course, courseID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return response.NotFound(c, "Course not found")
			}
			return response.InternalServerError(c, "Failed to fetch course")
		}

		percent, err := h.gradebook.CourseAttendancePercent(c.Context(), userID, course.ID, time.Now())
		if err != nil {
			return response.InternalServerError(c, "Failed to compute attendance percentage")
		}
		result["course_id"] = course.ID
		result["attendance_percent"] = percent
	}

	return response.Success(c, result)
}

// CourseAttendance handles GET /api/v1/courses/:id/attendance.
// Serves the hourly-refreshed redis summary when present and falls back to
// computing the roster on the spot.
func (h *AttendanceHandler) CourseAttendance(c *fiber.Ctx) error {
	caller, ok := middleware.GetUser(c)
	if !ok || caller == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !caller.IsAdmin && !caller.IsInstructor {
		return response.Forbidden(c, "Only instructors can view the attendance roster")
	}

	var course model.Course
	if err := h.db.Where("school_id = ?", caller.SchoolID).
		First(&course, c.Params("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	key := fmt.Sprintf(model.RedisKeyAttendanceSummary, course.ID)

	if h.cache != nil {
		var summary model.CourseAttendanceSummary
		if err := h.cache.GetJSON(c.Context(), key, &summary); err == nil {
			return response.Success(c, summary)
		} else if err != cache.ErrNotFound {
			log.Printf("Failed to read attendance summary for course %d: %v", course.ID, err)
		}
	}

	now := time.Now()
	report, err := services.NewReportService(h.db).BuildCourseReport(c.Context(), course.ID, now)
	if err != nil {
		return response.InternalServerError(c, "Failed to build attendance summary")
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

	if h.cache != nil {
		if err := h.cache.SetJSON(c.Context(), key, summary, summaryCacheTTL); err != nil {
			log.Printf("Failed to cache attendance summary for course %d: %v", course.ID, err)
		}
	}

	return response.Success(c, summary)
}

// parseDate accepts a calendar day or a full RFC3339 timestamp
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
