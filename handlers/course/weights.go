package course

import (
	"github.com/gofiber/fiber/v2"
	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/utils/middleware"
	"github.com/schoolhub-io/schoolhub/utils/response"
	"github.com/schoolhub-io/schoolhub/utils/validation"
	"gorm.io/gorm"
)

// CreateWeightRequest represents the request body for adding a grade-weight row
type CreateWeightRequest struct {
	Assignment string `json:"assignment" validate:"required,min=1,max=255"`
	Checkpoint bool   `json:"checkpoint"`
}

// UpdateWeightRequest represents the request body for updating a grade-weight row
type UpdateWeightRequest struct {
	Assignment string `json:"assignment" validate:"omitempty,min=1,max=255"`
	Checkpoint *bool  `json:"checkpoint"`
}

// ListWeights handles GET /api/v1/courses/:id/weights
func (h *CourseHandler) ListWeights(c *fiber.Ctx) error {
	schoolID, ok := middleware.GetSchoolID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	course, errResp := h.courseInSchool(c, schoolID)
	if course == nil {
		return errResp
	}

	var weights []model.GradeWeight
	if err := h.db.Where("course_id = ?", course.ID).
		Order("assignment ASC").
		Find(&weights).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch grade weights")
	}

	return response.Success(c, weights)
}

// CreateWeight handles POST /api/v1/courses/:id/weights.
// Assignment names are matched exactly against grade records, so the row
// must use the same spelling graders use.
func (h *CourseHandler) CreateWeight(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !user.IsAdmin && !user.IsInstructor {
		return response.Forbidden(c, "Only instructors can manage grade weights")
	}

	course, errResp := h.courseInSchool(c, user.SchoolID)
	if course == nil {
		return errResp
	}

	var req CreateWeightRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	req.Assignment = validation.SanitizeString(req.Assignment)

	// One row per assignment name per course
	var existing model.GradeWeight
	if err := h.db.Where("course_id = ? AND assignment = ?", course.ID, req.Assignment).
		First(&existing).Error; err == nil {
		return response.Conflict(c, "Weight for this assignment already exists")
	}

	weight := model.GradeWeight{
		CourseID:   course.ID,
		Assignment: req.Assignment,
		Checkpoint: req.Checkpoint,
	}

	if err := h.db.Create(&weight).Error; err != nil {
		return response.InternalServerError(c, "Failed to create grade weight")
	}

	return response.Created(c, weight)
}

// UpdateWeight handles PUT /api/v1/courses/:id/weights/:weight_id
func (h *CourseHandler) UpdateWeight(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !user.IsAdmin && !user.IsInstructor {
		return response.Forbidden(c, "Only instructors can manage grade weights")
	}

	course, errResp := h.courseInSchool(c, user.SchoolID)
	if course == nil {
		return errResp
	}

	var weight model.GradeWeight
	if err := h.db.Where("course_id = ?", course.ID).
		First(&weight, c.Params("weight_id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Grade weight not found")
		}
		return response.InternalServerError(c, "Failed to fetch grade weight")
	}

	var req UpdateWeightRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	if req.Assignment != "" {
		req.Assignment = validation.SanitizeString(req.Assignment)
		var existing model.GradeWeight
		if err := h.db.Where("course_id = ? AND assignment = ? AND id != ?",
			course.ID, req.Assignment, weight.ID).First(&existing).Error; err == nil {
			return response.Conflict(c, "Weight for this assignment already exists")
		}
		weight.Assignment = req.Assignment
	}

	if req.Checkpoint != nil {
		weight.Checkpoint = *req.Checkpoint
	}

	if err := h.db.Save(&weight).Error; err != nil {
		return response.InternalServerError(c, "Failed to update grade weight")
	}

	return response.SuccessWithMessage(c, "Grade weight updated successfully", weight)
}

// DeleteWeight handles DELETE /api/v1/courses/:id/weights/:weight_id.
// Grade records for the assignment stay; they just stop counting toward
// the course average.
func (h *CourseHandler) DeleteWeight(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !user.IsAdmin && !user.IsInstructor {
		return response.Forbidden(c, "Only instructors can manage grade weights")
	}

	course, errResp := h.courseInSchool(c, user.SchoolID)
	if course == nil {
		return errResp
	}

	var weight model.GradeWeight
	if err := h.db.Where("course_id = ?", course.ID).
		First(&weight, c.Params("weight_id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Grade weight not found")
		}
		return response.InternalServerError(c, "Failed to fetch grade weight")
	}

	if err := h.db.Delete(&weight).Error; err != nil {
		return response.InternalServerError(c, "Failed to delete grade weight")
	}

	return response.SuccessWithMessage(c, "Grade weight deleted successfully", nil)
}

// courseInSchool loads the course named by the :id route param, scoped to the
// given school. On failure the second return value carries the response
// already written to the context.
func (h *CourseHandler) courseInSchool(c *fiber.Ctx, schoolID uint) (*model.Course, error) {
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
