package report

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/services"
	"github.com/schoolhub-io/schoolhub/utils/middleware"
	"github.com/schoolhub-io/schoolhub/utils/response"
	"gorm.io/gorm"
)

// ReportHandler serves school dashboards and course reports
type ReportHandler struct {
	db      *gorm.DB
	reports *services.ReportService
}

// NewReportHandler creates a new report handler
func NewReportHandler(db *gorm.DB) *ReportHandler {
	return &ReportHandler{
		db:      db,
		reports: services.NewReportService(db),
	}
}

// Dashboard handles GET /api/v1/reports/dashboard
func (h *ReportHandler) Dashboard(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !user.IsAdmin {
		return response.Forbidden(c, "Only administrators can view reports")
	}

	report, err := h.reports.BuildDashboard(c.Context(), user.SchoolID)
	if err != nil {
		return response.InternalServerError(c, "Failed to build dashboard")
	}

	return response.Success(c, report)
}

// CourseReport handles GET /api/v1/reports/courses/:id
func (h *ReportHandler) CourseReport(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !user.IsAdmin && !user.IsInstructor {
		return response.Forbidden(c, "Only instructors can view course reports")
	}

	course, errResp := h.courseInSchool(c, user.SchoolID)
	if course == nil {
		return errResp
	}

	report, err := h.reports.BuildCourseReport(c.Context(), course.ID, time.Now())
	if err != nil {
		if errors.Is(err, services.ErrCourseNotFound) {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to build course report")
	}

	return response.Success(c, report)
}

// ExportCourseReport handles GET /api/v1/reports/courses/:id/export.
// Streams the report as an XLSX download.
func (h *ReportHandler) ExportCourseReport(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !user.IsAdmin && !user.IsInstructor {
		return response.Forbidden(c, "Only instructors can export course reports")
	}

	course, errResp := h.courseInSchool(c, user.SchoolID)
	if course == nil {
		return errResp
	}

	data, fileName, err := h.reports.ExportCourseReportXLSX(c.Context(), course.ID, time.Now())
	if err != nil {
		if errors.Is(err, services.ErrCourseNotFound) {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to export course report")
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", `attachment; filename="`+fileName+`"`)
	return c.Send(data)
}

// courseInSchool loads the course named by the :id route param, scoped to the
// given school. On failure the second return value carries the response
// already written to the context.
func (h *ReportHandler) courseInSchool(c *fiber.Ctx, schoolID uint) (*model.Course, error) {
	var course model.Course
	if err := h.db.Where("school_id = ?", schoolID).
		First(&course, c.Params("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, response.NotFound(c, "Course not found")
		}
		return nil, response.InternalServerError(c, "Failed to fetch course")
	}
	return &course, nil
}
