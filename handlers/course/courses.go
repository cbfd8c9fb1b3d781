package course

import (
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/services"
	"github.com/schoolhub-io/schoolhub/utils/middleware"
	"github.com/schoolhub-io/schoolhub/utils/response"
	"github.com/schoolhub-io/schoolhub/utils/validation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	errInsufficientCredits = errors.New("insufficient credits")
	errCourseFull          = errors.New("course is full")
)

// CourseHandler handles course-related requests. Every query is scoped to the
// caller's school.
type CourseHandler struct {
	db                  *gorm.DB
	validator           *validation.Validator
	notificationService *services.NotificationService
}

// NewCourseHandler creates a new course handler
func NewCourseHandler(db *gorm.DB) *CourseHandler {
	return &CourseHandler{
		db:                  db,
		validator:           validation.NewValidator(),
		notificationService: services.NewNotificationService(db),
	}
}

// CreateCourseRequest represents the request body for creating a course.
// Days holds weekday names ("Monday" or "mon" both work).
type CreateCourseRequest struct {
	TermID      uint     `json:"term_id" validate:"required,min=1"`
	Name        string   `json:"name" validate:"required,min=3,max=255"`
	Code        string   `json:"code" validate:"required,min=2,max=50"`
	Description string   `json:"description" validate:"omitempty,max=1000"`
	Days        []string `json:"days" validate:"required,min=1,max=7"`
	Price       int64    `json:"price" validate:"omitempty,min=0"`
	Capacity    int      `json:"capacity" validate:"omitempty,min=0"`
}

// UpdateCourseRequest represents the request body for updating a course
type UpdateCourseRequest struct {
	TermID      *uint    `json:"term_id" validate:"omitempty,min=1"`
	Name        string   `json:"name" validate:"omitempty,min=3,max=255"`
	Code        string   `json:"code" validate:"omitempty,min=2,max=50"`
	Description *string  `json:"description" validate:"omitempty,max=1000"`
	Days        []string `json:"days" validate:"omitempty,min=1,max=7"`
	Price       *int64   `json:"price" validate:"omitempty,min=0"`
	Capacity    *int     `json:"capacity" validate:"omitempty,min=0"`
}

// ListCourses handles GET /api/v1/courses
func (h *CourseHandler) ListCourses(c *fiber.Ctx) error {
	schoolID, ok := middleware.GetSchoolID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	// Parse query parameters
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	search := c.Query("search", "")
	termID := c.Query("term_id", "")

	// Build query
	query := h.db.Model(&model.Course{}).Where("school_id = ?", schoolID)

	// Apply filters
	if search != "" {
		query = query.Where("name ILIKE ? OR code ILIKE ? OR description ILIKE ?",
			"%"+search+"%", "%"+search+"%", "%"+search+"%")
	}

	if termID != "" {
		query = query.Where("term_id = ?", termID)
	}

	// Get total count
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count courses")
	}

	// Calculate pagination
	offset := (page - 1) * limit
	pagination := response.CalculatePagination(page, limit, total)

	// Get courses with pagination and preload term
	var courses []model.Course
	if err := query.Preload("Term").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&courses).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch courses")
	}

	return response.Paginated(c, courses, pagination)
}

// GetCourse handles GET /api/v1/courses/:id
func (h *CourseHandler) GetCourse(c *fiber.Ctx) error {
	schoolID, ok := middleware.GetSchoolID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	userID, _ := middleware.GetUserID(c)

	id := c.Params("id")

	var course model.Course
	if err := h.db.Preload("Term").
		Preload("GradeWeights").
		Where("school_id = ?", schoolID).
		First(&course, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	var registeredCount int64
	h.db.Model(&model.Registration{}).Where("course_id = ?", course.ID).Count(&registeredCount)

	var callerRegistered int64
	h.db.Model(&model.Registration{}).
		Where("course_id = ? AND user_id = ?", course.ID, userID).
		Count(&callerRegistered)

	return response.Success(c, fiber.Map{
		"course":           course,
		"term_status":      course.Term.Status(time.Now()),
		"registered_count": registeredCount,
		"is_registered":    callerRegistered > 0,
	})
}

// CreateCourse handles POST /api/v1/courses
func (h *CourseHandler) CreateCourse(c *fiber.Ctx) error {
	// Get user from context
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !user.IsAdmin {
		return response.Forbidden(c, "Only administrators can create courses")
	}

	// Parse request body
	var req CreateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	// Validate request
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	days, err := encodeDays(req.Days)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	// Sanitize inputs
	req.Name = validation.SanitizeString(req.Name)
	req.Code = validation.SanitizeString(req.Code)
	req.Description = validation.SanitizeString(req.Description)

	// Term must exist in the same school
	var term model.Term
	if err := h.db.Where("school_id = ?", user.SchoolID).First(&term, req.TermID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Term not found")
		}
		return response.InternalServerError(c, "Failed to verify term")
	}

	// Check if course with same code already exists
	var existingCourse model.Course
	if err := h.db.Where("code = ?", req.Code).First(&existingCourse).Error; err == nil {
		return response.Conflict(c, "Course with this code already exists")
	}

	// Create course
	course := model.Course{
		SchoolID:    user.SchoolID,
		TermID:      req.TermID,
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		Days:        days,
		Price:       req.Price,
		Capacity:    req.Capacity,
	}

	if err := h.db.Create(&course).Error; err != nil {
		return response.InternalServerError(c, "Failed to create course")
	}

	// Preload term for response
	h.db.Preload("Term").First(&course, course.ID)

	return response.Created(c, course)
}

// UpdateCourse handles PUT /api/v1/courses/:id
func (h *CourseHandler) UpdateCourse(c *fiber.Ctx) error {
	id := c.Params("id")

	// Get user from context
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !user.IsAdmin {
		return response.Forbidden(c, "Only administrators can update courses")
	}

	// Parse request body
	var req UpdateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	// Validate request
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	// Check if course exists in the caller's school
	var course model.Course
	if err := h.db.Where("school_id = ?", user.SchoolID).First(&course, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	// Update fields if provided
	if req.TermID != nil {
		var term model.Term
		if err := h.db.Where("school_id = ?", user.SchoolID).First(&term, *req.TermID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return response.NotFound(c, "Term not found")
			}
			return response.InternalServerError(c, "Failed to verify term")
		}
		course.TermID = *req.TermID
	}

	if req.Name != "" {
		course.Name = validation.SanitizeString(req.Name)
	}

	if req.Code != "" {
		// Check if code is already used by another course
		var existingCourse model.Course
		if err := h.db.Where("code = ? AND id != ?", req.Code, id).First(&existingCourse).Error; err == nil {
			return response.Conflict(c, "Course with this code already exists")
		}
		course.Code = validation.SanitizeString(req.Code)
	}

	if req.Description != nil {
		course.Description = validation.SanitizeString(*req.Description)
	}

	if len(req.Days) > 0 {
		days, err := encodeDays(req.Days)
		if err != nil {
			return response.BadRequest(c, err.Error())
		}
		course.Days = days
	}

	if req.Price != nil {
		course.Price = *req.Price
	}

	if req.Capacity != nil {
		course.Capacity = *req.Capacity
	}

	// Save changes
	if err := h.db.Save(&course).Error; err != nil {
		return response.InternalServerError(c, "Failed to update course")
	}

	// Preload term for response
	h.db.Preload("Term").First(&course, course.ID)

	return response.SuccessWithMessage(c, "Course updated successfully", course)
}

// DeleteCourse handles DELETE /api/v1/courses/:id
func (h *CourseHandler) DeleteCourse(c *fiber.Ctx) error {
	id := c.Params("id")

	// Get user from context
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !user.IsAdmin {
		return response.Forbidden(c, "Only administrators can delete courses")
	}

	// Check if course exists in the caller's school
	var course model.Course
	if err := h.db.Where("school_id = ?", user.SchoolID).First(&course, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	// Use a transaction so registrations and weights go with the course
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("course_id = ?", course.ID).Delete(&model.Registration{}).Error; err != nil {
			return err
		}

		if err := tx.Where("course_id = ?", course.ID).Delete(&model.GradeWeight{}).Error; err != nil {
			return err
		}

		// Delete course (soft delete)
		if err := tx.Delete(&course).Error; err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		return response.InternalServerError(c, "Failed to delete course: "+err.Error())
	}

	return response.SuccessWithMessage(c, "Course and all registrations deleted successfully", nil)
}

// Register handles POST /api/v1/courses/:id/register.
// The caller registers themselves; the course price is deducted from their
// credit balance in the same transaction that creates the registration.
func (h *CourseHandler) Register(c *fiber.Ctx) error {
	id := c.Params("id")

	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var course model.Course
	if err := h.db.Preload("Term").
		Where("school_id = ?", user.SchoolID).
		First(&course, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	// Registration closes once the term is over
	if course.Term.Status(time.Now()) == model.TermStatusPast {
		return response.BadRequest(c, "Registration is closed for past terms")
	}

	// Per-user price override wins over the course price
	price := course.Price
	if user.Price != nil {
		price = *user.Price
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&model.Registration{}).
			Where("user_id = ? AND course_id = ?", user.ID, course.ID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return gorm.ErrDuplicatedKey
		}

		if course.Capacity > 0 {
			var enrolled int64
			if err := tx.Model(&model.Registration{}).
				Where("course_id = ?", course.ID).
				Count(&enrolled).Error; err != nil {
				return err
			}
			if enrolled >= int64(course.Capacity) {
				return errCourseFull
			}
		}

		if price > 0 {
			// The WHERE clause guards the balance so two concurrent
			// registrations cannot drive credits negative
			res := tx.Model(&model.User{}).
				Where("id = ? AND credits >= ?", user.ID, price).
				UpdateColumn("credits", gorm.Expr("credits - ?", price))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errInsufficientCredits
			}
		}

		registration := model.Registration{
			UserID:   user.ID,
			CourseID: course.ID,
		}
		return tx.Create(&registration).Error
	})

	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrDuplicatedKey):
			return response.Conflict(c, "Already registered for this course")
		case errors.Is(err, errInsufficientCredits):
			return response.BadRequest(c, "Insufficient credits to register for this course")
		case errors.Is(err, errCourseFull):
			return response.Conflict(c, "Course is full")
		default:
			return response.InternalServerError(c, "Failed to register for course")
		}
	}

	// The registration is committed; a lost notification is not worth
	// failing the request over
	if err := h.notificationService.NotifyRegistration(c.Context(), user.ID, &course); err != nil {
		log.Printf("Failed to notify user %d about registration for course %d: %v", user.ID, course.ID, err)
	}

	return response.SuccessWithMessage(c, "Registered successfully", fiber.Map{
		"course_id":   course.ID,
		"course_name": course.Name,
		"price_paid":  price,
	})
}

// Unregister handles DELETE /api/v1/courses/:id/register.
// Credits are not refunded automatically; adjustments go through an admin.
func (h *CourseHandler) Unregister(c *fiber.Ctx) error {
	id := c.Params("id")

	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var course model.Course
	if err := h.db.Where("school_id = ?", user.SchoolID).First(&course, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	res := h.db.Where("user_id = ? AND course_id = ?", user.ID, course.ID).
		Delete(&model.Registration{})
	if res.Error != nil {
		return response.InternalServerError(c, "Failed to unregister from course")
	}
	if res.RowsAffected == 0 {
		return response.NotFound(c, "Not registered for this course")
	}

	return response.SuccessWithMessage(c, "Unregistered successfully", nil)
}

// MyCourses handles GET /api/v1/courses/mine
func (h *CourseHandler) MyCourses(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var registrations []model.Registration
	if err := h.db.Preload("Course").Preload("Course.Term").
		Where("user_id = ?", userID).
		Order("enrolled_at DESC").
		Find(&registrations).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch registrations")
	}

	return response.Success(c, registrations)
}

// encodeDays validates weekday names and packs them into the JSON column
func encodeDays(days []string) (datatypes.JSON, error) {
	for _, d := range days {
		if !services.ValidWeekday(d) {
			return nil, errors.New("Unknown weekday: " + d)
		}
	}
	raw, err := json.Marshal(days)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
