package school

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/utils/middleware"
	"github.com/schoolhub-io/schoolhub/utils/response"
	"github.com/schoolhub-io/schoolhub/utils/validation"
	"gorm.io/gorm"
)

// SchoolHandler handles school-related requests
type SchoolHandler struct {
	db        *gorm.DB
	validator *validation.Validator
}

// NewSchoolHandler creates a new school handler
func NewSchoolHandler(db *gorm.DB) *SchoolHandler {
	return &SchoolHandler{
		db:        db,
		validator: validation.NewValidator(),
	}
}

// CreateSchoolRequest represents the request body for creating a school
type CreateSchoolRequest struct {
	Name    string `json:"name" validate:"required,min=3,max=255"`
	Code    string `json:"code" validate:"required,min=2,max=50"`
	Address string `json:"address" validate:"omitempty,max=255"`
	Phone   string `json:"phone" validate:"omitempty,max=30"`
}

// UpdateSchoolRequest represents the request body for updating a school
type UpdateSchoolRequest struct {
	Name     string `json:"name" validate:"omitempty,min=3,max=255"`
	Code     string `json:"code" validate:"omitempty,min=2,max=50"`
	Address  string `json:"address" validate:"omitempty,max=255"`
	Phone    string `json:"phone" validate:"omitempty,max=30"`
	IsActive *bool  `json:"is_active" validate:"omitempty"`
}

// ListSchools handles GET /api/v1/schools
func (h *SchoolHandler) ListSchools(c *fiber.Ctx) error {
	// Parse query parameters
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	search := c.Query("search", "")
	isActive := c.Query("is_active", "")

	// Build query
	query := h.db.Model(&model.School{})

	// Apply filters
	if search != "" {
		query = query.Where("name ILIKE ? OR code ILIKE ?",
			"%"+search+"%", "%"+search+"%")
	}

	if isActive != "" {
		if isActive == "true" {
			query = query.Where("is_active = ?", true)
		} else if isActive == "false" {
			query = query.Where("is_active = ?", false)
		}
	}

	// Get total count
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count schools")
	}

	// Calculate pagination
	offset := (page - 1) * limit
	pagination := response.CalculatePagination(page, limit, total)

	// Get schools with pagination
	var schools []model.School
	if err := query.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&schools).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch schools")
	}

	return response.Paginated(c, schools, pagination)
}

// GetSchool handles GET /api/v1/schools/:id
func (h *SchoolHandler) GetSchool(c *fiber.Ctx) error {
	id := c.Params("id")

	var school model.School
	if err := h.db.Preload("Terms").First(&school, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "School not found")
		}
		return response.InternalServerError(c, "Failed to fetch school")
	}

	return response.Success(c, school)
}

// CreateSchool handles POST /api/v1/schools
func (h *SchoolHandler) CreateSchool(c *fiber.Ctx) error {
	// Authorization: Admin only
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !user.IsAdmin {
		return response.Forbidden(c, "Only administrators can create schools")
	}

	// Parse request body
	var req CreateSchoolRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	// Validate request
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	// Sanitize inputs; codes are stored upper-case
	req.Name = validation.SanitizeString(req.Name)
	req.Code = strings.ToUpper(validation.SanitizeString(req.Code))
	req.Address = validation.SanitizeString(req.Address)
	req.Phone = validation.SanitizeString(req.Phone)

	// Check if school with same code already exists
	var existingSchool model.School
	if err := h.db.Where("code = ?", req.Code).First(&existingSchool).Error; err == nil {
		return response.Conflict(c, "School with this code already exists")
	}

	// Create school
	school := model.School{
		Name:     req.Name,
		Code:     req.Code,
		Address:  req.Address,
		Phone:    req.Phone,
		IsActive: true,
	}

	if err := h.db.Create(&school).Error; err != nil {
		return response.InternalServerError(c, "Failed to create school")
	}

	return response.Created(c, school)
}

// UpdateSchool handles PUT /api/v1/schools/:id
func (h *SchoolHandler) UpdateSchool(c *fiber.Ctx) error {
	id := c.Params("id")

	// Authorization: Admin only
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !user.IsAdmin {
		return response.Forbidden(c, "Only administrators can update schools")
	}

	// Parse request body
	var req UpdateSchoolRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	// Validate request
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	// Check if school exists
	var school model.School
	if err := h.db.First(&school, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "School not found")
		}
		return response.InternalServerError(c, "Failed to fetch school")
	}

	// Update fields if provided
	if req.Name != "" {
		school.Name = validation.SanitizeString(req.Name)
	}
	if req.Code != "" {
		code := strings.ToUpper(validation.SanitizeString(req.Code))
		// Check if code is already used by another school
		var existingSchool model.School
		if err := h.db.Where("code = ? AND id != ?", code, id).First(&existingSchool).Error; err == nil {
			return response.Conflict(c, "School with this code already exists")
		}
		school.Code = code
	}
	if req.Address != "" {
		school.Address = validation.SanitizeString(req.Address)
	}
	if req.Phone != "" {
		school.Phone = validation.SanitizeString(req.Phone)
	}
	if req.IsActive != nil {
		school.IsActive = *req.IsActive
	}

	// Save changes
	if err := h.db.Save(&school).Error; err != nil {
		return response.InternalServerError(c, "Failed to update school")
	}

	return response.SuccessWithMessage(c, "School updated successfully", school)
}

// DeleteSchool handles DELETE /api/v1/schools/:id
// Cascade deletes all users, terms, courses and their dependent records
func (h *SchoolHandler) DeleteSchool(c *fiber.Ctx) error {
	id := c.Params("id")

	// Authorization: Admin only
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !user.IsAdmin {
		return response.Forbidden(c, "Only administrators can delete schools")
	}

	// Check if school exists
	var school model.School
	if err := h.db.First(&school, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "School not found")
		}
		return response.InternalServerError(c, "Failed to fetch school")
	}

	// Use a transaction for cascade delete
	err := h.db.Transaction(func(tx *gorm.DB) error {
		// Delete attendance and grade records for the school's users
		if err := tx.Where("user_id IN (SELECT id FROM users WHERE school_id = ?)", id).
			Delete(&model.AttendanceRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id IN (SELECT id FROM users WHERE school_id = ?)", id).
			Delete(&model.GradeRecord{}).Error; err != nil {
			return err
		}

		// Delete registrations and grade weights for the school's courses
		if err := tx.Where("course_id IN (SELECT id FROM courses WHERE school_id = ?)", id).
			Delete(&model.Registration{}).Error; err != nil {
			return err
		}
		if err := tx.Where("course_id IN (SELECT id FROM courses WHERE school_id = ?)", id).
			Delete(&model.GradeWeight{}).Error; err != nil {
			return err
		}

		// Delete invoices for this school
		if err := tx.Where("school_id = ?", id).Delete(&model.Invoice{}).Error; err != nil {
			return err
		}

		// Delete all courses for this school
		if err := tx.Where("school_id = ?", id).Delete(&model.Course{}).Error; err != nil {
			return err
		}

		// Delete all terms for this school
		if err := tx.Where("school_id = ?", id).Delete(&model.Term{}).Error; err != nil {
			return err
		}

		// Delete all users for this school
		if err := tx.Where("school_id = ?", id).Delete(&model.User{}).Error; err != nil {
			return err
		}

		// Delete school (soft delete)
		if err := tx.Delete(&school).Error; err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		return response.InternalServerError(c, "Failed to delete school: "+err.Error())
	}

	return response.SuccessWithMessage(c, "School and all related data deleted successfully", nil)
}
