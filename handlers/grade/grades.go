package grade

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/schoolhub-io/schoolhub/metrics"
	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/services"
	"github.com/schoolhub-io/schoolhub/utils/middleware"
	"github.com/schoolhub-io/schoolhub/utils/response"
	"github.com/schoolhub-io/schoolhub/utils/validation"
	"gorm.io/gorm"
)

// GradeHandler handles grade recording and gradebook views
type GradeHandler struct {
	db        *gorm.DB
	validator *validation.Validator
	gradebook *services.GradebookService
}

// NewGradeHandler creates a new grade handler
func NewGradeHandler(db *gorm.DB) *GradeHandler {
	return &GradeHandler{
		db:        db,
		validator: validation.NewValidator(),
		gradebook: services.NewGradebookService(db),
	}
}

// SetGradeRequest represents the request body for recording a score.
// A null score stores the assignment as handed out but not yet graded.
type SetGradeRequest struct {
	UserID     uint     `json:"user_id" validate:"required,min=1"`
	Assignment string   `json:"assignment" validate:"required,min=1,max=255"`
	Score      *float64 `json:"score" validate:"omitempty,min=0,max=100"`
}

// SetGrade handles PUT /api/v1/grades.
// Upserts the target user's record for the assignment.
func (h *GradeHandler) SetGrade(c *fiber.Ctx) error {
	caller, ok := middleware.GetUser(c)
	if !ok || caller == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !caller.IsAdmin && !caller.IsInstructor {
		return response.Forbidden(c, "Only instructors can record grades")
	}

	var req SetGradeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	req.Assignment = validation.SanitizeString(req.Assignment)

	// Target must exist in the caller's school
	var target model.User
	if err := h.db.Where("school_id = ?", caller.SchoolID).
		First(&target, req.UserID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "User not found")
		}
		return response.InternalServerError(c, "Failed to fetch user")
	}

	var record model.GradeRecord
	err := h.db.Where("user_id = ? AND assignment = ?", target.ID, req.Assignment).
		First(&record).Error
	switch {
	case err == nil:
		record.Score = req.Score
		record.GradedBy = &caller.ID
		if err := h.db.Save(&record).Error; err != nil {
			return response.InternalServerError(c, "Failed to update grade")
		}
	case err == gorm.ErrRecordNotFound:
		record = model.GradeRecord{
			UserID:     target.ID,
			Assignment: req.Assignment,
			Score:      req.Score,
			GradedBy:   &caller.ID,
		}
		if err := h.db.Create(&record).Error; err != nil {
			return response.InternalServerError(c, "Failed to record grade")
		}
	default:
		return response.InternalServerError(c, "Failed to fetch grade")
	}

	if req.Score != nil {
		metrics.GradeScoreHistogram.WithLabelValues(h.assignmentKind(req.Assignment)).Observe(*req.Score)
	}

	return response.SuccessWithMessage(c, "Grade recorded successfully", record)
}

// MyGrades handles GET /api/v1/grades/mine.
// With course_id the records are paired with the course's weighted average.
func (h *GradeHandler) MyGrades(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	schoolID, _ := middleware.GetSchoolID(c)

	var records []model.GradeRecord
	if err := h.db.Where("user_id = ?", userID).
		Order("assignment ASC").
		Find(&records).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch grades")
	}

	result := fiber.Map{"grades": records}

	if courseID := c.QueryInt("course_id"); courseID > 0 {
		var course model.Course
		if err := h.db.Where("school_id = ?", schoolID).
			First(&course, courseID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return response.NotFound(c, "Course not found")
			}
			return response.InternalServerError(c, "Failed to fetch course")
		}

		average, err := h.gradebook.CourseGradeAverage(c.Context(), userID, course.ID, h.defaultPolicy(c))
		if err != nil {
			return response.InternalServerError(c, "Failed to compute grade average")
		}
		result["course_id"] = course.ID
		result["grade_average"] = average
	}

	return response.Success(c, result)
}

// CourseGradebook handles GET /api/v1/courses/:id/gradebook.
// The checkpoint_weight query parameter overrides the configured default
// split; values outside [0,1] are rejected.
func (h *GradeHandler) CourseGradebook(c *fiber.Ctx) error {
	caller, ok := middleware.GetUser(c)
	if !ok || caller == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !caller.IsAdmin && !caller.IsInstructor {
		return response.Forbidden(c, "Only instructors can view the gradebook")
	}

	var course model.Course
	if err := h.db.Where("school_id = ?", caller.SchoolID).
		First(&course, c.Params("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	policy := h.defaultPolicy(c)
	if raw := c.Query("checkpoint_weight"); raw != "" {
		cw, err := strconv.ParseFloat(raw, 64)
		if err != nil || cw < 0 || cw > 1 {
			return response.BadRequest(c, "checkpoint_weight must be a number between 0 and 1")
		}
		policy = services.WeightPolicy{Checkpoint: cw, Daily: 1 - cw}
	}

	var registrations []model.Registration
	if err := h.db.Preload("User").
		Where("course_id = ?", course.ID).
		Find(&registrations).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch registrations")
	}

	type gradebookRow struct {
		UserID       uint    `json:"user_id"`
		IDN          int     `json:"idn"`
		Username     string  `json:"username"`
		FullName     string  `json:"full_name"`
		GradeAverage float64 `json:"grade_average"`
	}

	rows := make([]gradebookRow, 0, len(registrations))
	for _, reg := range registrations {
		average, err := h.gradebook.CourseGradeAverage(c.Context(), reg.UserID, course.ID, policy)
		if err != nil {
			return response.InternalServerError(c, "Failed to compute grade averages")
		}
		rows = append(rows, gradebookRow{
			UserID:       reg.UserID,
			IDN:          reg.User.IDN,
			Username:     reg.User.Username,
			FullName:     reg.User.FullName(),
			GradeAverage: average,
		})
	}

	return response.Success(c, fiber.Map{
		"course_id":         course.ID,
		"course_name":       course.Name,
		"checkpoint_weight": policy.Checkpoint,
		"daily_weight":      policy.Daily,
		"rows":              rows,
		"generated_at":      time.Now().UTC(),
	})
}

// defaultPolicy reads the grade.checkpoint_weight setting; missing or
// unparsable means the stock 60/40 split
func (h *GradeHandler) defaultPolicy(c *fiber.Ctx) services.WeightPolicy {
	var setting model.AppSetting
	err := h.db.WithContext(c.Context()).
		Where("key = ?", "grade.checkpoint_weight").
		First(&setting).Error
	if err != nil {
		return services.DefaultWeightPolicy
	}
	cw, err := strconv.ParseFloat(setting.Value, 64)
	if err != nil || cw < 0 || cw > 1 {
		return services.DefaultWeightPolicy
	}
	return services.WeightPolicy{Checkpoint: cw, Daily: 1 - cw}
}

// assignmentKind classifies an assignment for the score metric by its
// weight-table rows. Unweighted assignments are still stored; they just
// never count toward an average.
func (h *GradeHandler) assignmentKind(assignment string) string {
	var weight model.GradeWeight
	err := h.db.Where("assignment = ?", assignment).First(&weight).Error
	switch {
	case err == nil && weight.Checkpoint:
		return "checkpoint"
	case err == nil:
		return "daily"
	default:
		return "unweighted"
	}
}
