package term

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/utils/middleware"
	"github.com/schoolhub-io/schoolhub/utils/response"
	"github.com/schoolhub-io/schoolhub/utils/validation"
	"gorm.io/gorm"
)

// TermHandler handles academic term requests. All operations are scoped to
// the caller's school.
type TermHandler struct {
	db        *gorm.DB
	validator *validation.Validator
}

// NewTermHandler creates a new term handler
func NewTermHandler(db *gorm.DB) *TermHandler {
	return &TermHandler{
		db:        db,
		validator: validation.NewValidator(),
	}
}

// CreateTermRequest represents the request body for creating a term.
// Dates accept "2006-01-02" or RFC3339.
type CreateTermRequest struct {
	Name      string `json:"name" validate:"required,min=3,max=100"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
}

// UpdateTermRequest represents the request body for updating a term
type UpdateTermRequest struct {
	Name      string `json:"name" validate:"omitempty,min=3,max=100"`
	StartDate string `json:"start_date" validate:"omitempty"`
	EndDate   string `json:"end_date" validate:"omitempty"`
}

// termWithStatus decorates a term with its classification against now
type termWithStatus struct {
	model.Term
	Status model.TermStatus `json:"status"`
}

// ListTerms handles GET /api/v1/terms
func (h *TermHandler) ListTerms(c *fiber.Ctx) error {
	schoolID, ok := middleware.GetSchoolID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	// Parse query parameters
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	status := c.Query("status", "")

	now := time.Now()
	query := h.db.Model(&model.Term{}).Where("school_id = ?", schoolID)

	// Status filters map to date conditions so pagination counts stay honest
	switch model.TermStatus(status) {
	case model.TermStatusCurrent:
		query = query.Where("start_date <= ? AND end_date >= ?", now, now)
	case model.TermStatusPast:
		query = query.Where("end_date < ?", now)
	case model.TermStatusFuture:
		query = query.Where("start_date > ?", now)
	}

	// Get total count
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count terms")
	}

	// Calculate pagination
	offset := (page - 1) * limit
	pagination := response.CalculatePagination(page, limit, total)

	var terms []model.Term
	if err := query.Order("start_date DESC").
		Limit(limit).
		Offset(offset).
		Find(&terms).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch terms")
	}

	decorated := make([]termWithStatus, 0, len(terms))
	for _, t := range terms {
		decorated = append(decorated, termWithStatus{Term: t, Status: t.Status(now)})
	}

	return response.Paginated(c, decorated, pagination)
}

// GetTerm handles GET /api/v1/terms/:id
func (h *TermHandler) GetTerm(c *fiber.Ctx) error {
	schoolID, ok := middleware.GetSchoolID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	id := c.Params("id")

	var term model.Term
	if err := h.db.Preload("Courses").
		Where("school_id = ?", schoolID).
		First(&term, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Term not found")
		}
		return response.InternalServerError(c, "Failed to fetch term")
	}

	return response.Success(c, termWithStatus{Term: term, Status: term.Status(time.Now())})
}

// CreateTerm handles POST /api/v1/terms
func (h *TermHandler) CreateTerm(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !user.IsAdmin {
		return response.Forbidden(c, "Only administrators can create terms")
	}

	// Parse request body
	var req CreateTermRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	// Validate request
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	startDate, err := parseDate(req.StartDate)
	if err != nil {
		return response.BadRequest(c, "Invalid start date, expected YYYY-MM-DD")
	}
	endDate, err := parseDate(req.EndDate)
	if err != nil {
		return response.BadRequest(c, "Invalid end date, expected YYYY-MM-DD")
	}
	if !endDate.After(startDate) {
		return response.BadRequest(c, "End date must be after start date")
	}

	term := model.Term{
		SchoolID:  user.SchoolID,
		Name:      validation.SanitizeString(req.Name),
		StartDate: startDate,
		EndDate:   endDate,
	}

	if err := h.db.Create(&term).Error; err != nil {
		return response.InternalServerError(c, "Failed to create term")
	}

	return response.Created(c, termWithStatus{Term: term, Status: term.Status(time.Now())})
}

// UpdateTerm handles PUT /api/v1/terms/:id
func (h *TermHandler) UpdateTerm(c *fiber.Ctx) error {
	id := c.Params("id")

	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !user.IsAdmin {
		return response.Forbidden(c, "Only administrators can update terms")
	}

	// Parse request body
	var req UpdateTermRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	// Validate request
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	// Check if term exists within the caller's school
	var term model.Term
	if err := h.db.Where("school_id = ?", user.SchoolID).First(&term, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Term not found")
		}
		return response.InternalServerError(c, "Failed to fetch term")
	}

	// Update fields if provided
	if req.Name != "" {
		term.Name = validation.SanitizeString(req.Name)
	}
	if req.StartDate != "" {
		startDate, err := parseDate(req.StartDate)
		if err != nil {
			return response.BadRequest(c, "Invalid start date, expected YYYY-MM-DD")
		}
		term.StartDate = startDate
	}
	if req.EndDate != "" {
		endDate, err := parseDate(req.EndDate)
		if err != nil {
			return response.BadRequest(c, "Invalid end date, expected YYYY-MM-DD")
		}
		term.EndDate = endDate
	}
	if !term.EndDate.After(term.StartDate) {
		return response.BadRequest(c, "End date must be after start date")
	}

	// Save changes
	if err := h.db.Save(&term).Error; err != nil {
		return response.InternalServerError(c, "Failed to update term")
	}

	return response.SuccessWithMessage(c, "Term updated successfully",
		termWithStatus{Term: term, Status: term.Status(time.Now())})
}

// DeleteTerm handles DELETE /api/v1/terms/:id
// Cascade deletes the term's courses and their dependent records
func (h *TermHandler) DeleteTerm(c *fiber.Ctx) error {
	id := c.Params("id")

	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !user.IsAdmin {
		return response.Forbidden(c, "Only administrators can delete terms")
	}

	// Check if term exists within the caller's school
	var term model.Term
	if err := h.db.Where("school_id = ?", user.SchoolID).First(&term, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Term not found")
		}
		return response.InternalServerError(c, "Failed to fetch term")
	}

	// Use a transaction for cascade delete
	err := h.db.Transaction(func(tx *gorm.DB) error {
		// Delete registrations and grade weights for courses in this term
		if err := tx.Where("course_id IN (SELECT id FROM courses WHERE term_id = ?)", term.ID).
			Delete(&model.Registration{}).Error; err != nil {
			return err
		}
		if err := tx.Where("course_id IN (SELECT id FROM courses WHERE term_id = ?)", term.ID).
			Delete(&model.GradeWeight{}).Error; err != nil {
			return err
		}

		// Delete all courses in this term
		if err := tx.Where("term_id = ?", term.ID).Delete(&model.Course{}).Error; err != nil {
			return err
		}

		// Delete term (soft delete)
		if err := tx.Delete(&term).Error; err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		return response.InternalServerError(c, "Failed to delete term: "+err.Error())
	}

	return response.SuccessWithMessage(c, "Term and all related data deleted successfully", nil)
}

// parseDate accepts a bare date or an RFC3339 timestamp
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
