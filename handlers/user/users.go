package user

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/services"
	"github.com/schoolhub-io/schoolhub/utils/cache"
	"github.com/schoolhub-io/schoolhub/utils/middleware"
	"github.com/schoolhub-io/schoolhub/utils/response"
	"github.com/schoolhub-io/schoolhub/utils/validation"
	"gorm.io/gorm"
)

// UserHandler handles admin user management. All operations are scoped to the
// administrator's school.
type UserHandler struct {
	db                  *gorm.DB
	validator           *validation.Validator
	userService         *services.UserService
	progressTracker     *services.ProgressTracker
	notificationService *services.NotificationService
}

// NewUserHandler creates a new user handler. redisCache may be nil; imports
// then run synchronously without progress tracking.
func NewUserHandler(db *gorm.DB, redisCache *cache.RedisCache) *UserHandler {
	h := &UserHandler{
		db:                  db,
		validator:           validation.NewValidator(),
		userService:         services.NewUserService(db),
		notificationService: services.NewNotificationService(db),
	}
	if redisCache != nil {
		h.progressTracker = services.NewProgressTracker(redisCache)
	}
	return h
}

// CreateUserRequest represents the admin request body for creating a user
type CreateUserRequest struct {
	Username  string     `json:"username" validate:"required,min=3,max=30"`
	Password  string     `json:"password" validate:"required,min=8,max=128"`
	FirstName string     `json:"first_name" validate:"required,min=1,max=100"`
	LastName  string     `json:"last_name" validate:"required,min=1,max=100"`
	Email     string     `json:"email" validate:"omitempty,email"`
	Phone     string     `json:"phone" validate:"omitempty,max=30"`
	Address   string     `json:"address" validate:"omitempty,max=255"`
	BirthDate *time.Time `json:"birth_date"`
	PhotoURL  string     `json:"photo_url" validate:"omitempty,url,max=255"`
	Role      string     `json:"role" validate:"omitempty,oneof=student instructor admin"`
	Credits   int64      `json:"credits" validate:"omitempty,min=0"`
	Price     *int64     `json:"price" validate:"omitempty,min=0"`
}

// UpdateUserRequest represents the admin request body for a partial user
// update. ClearPrice removes a per-user price override; it wins over Price.
type UpdateUserRequest struct {
	FirstName  string     `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName   string     `json:"last_name" validate:"omitempty,min=1,max=100"`
	Email      string     `json:"email" validate:"omitempty,email"`
	Phone      string     `json:"phone" validate:"omitempty,max=30"`
	Address    string     `json:"address" validate:"omitempty,max=255"`
	BirthDate  *time.Time `json:"birth_date"`
	PhotoURL   string     `json:"photo_url" validate:"omitempty,url,max=255"`
	Price      *int64     `json:"price" validate:"omitempty,min=0"`
	ClearPrice bool       `json:"clear_price"`
}

// ListUsers handles GET /api/v1/users
func (h *UserHandler) ListUsers(c *fiber.Ctx) error {
	admin, ok := middleware.GetUser(c)
	if !ok || admin == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !admin.IsAdmin {
		return response.Forbidden(c, "Only administrators can list users")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	search := c.Query("search", "")
	role := c.Query("role", "")

	query := h.db.Model(&model.User{}).Where("school_id = ?", admin.SchoolID)

	if search != "" {
		query = query.Where("username ILIKE ? OR first_name ILIKE ? OR last_name ILIKE ? OR email ILIKE ?",
			"%"+search+"%", "%"+search+"%", "%"+search+"%", "%"+search+"%")
	}

	switch role {
	case model.RoleAdmin:
		query = query.Where("is_admin = ?", true)
	case model.RoleInstructor:
		query = query.Where("is_instructor = ?", true)
	case model.RoleStudent:
		query = query.Where("is_student = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count users")
	}

	offset := (page - 1) * limit
	pagination := response.CalculatePagination(page, limit, total)

	var users []model.User
	if err := query.Order("idn ASC").
		Limit(limit).
		Offset(offset).
		Find(&users).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch users")
	}

	responses := make([]model.UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, users[i].ToResponse())
	}

	return response.Paginated(c, responses, pagination)
}

// GetUser handles GET /api/v1/users/:id
func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	admin, ok := middleware.GetUser(c)
	if !ok || admin == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !admin.IsAdmin {
		return response.Forbidden(c, "Only administrators can view users")
	}

	target, errResp := h.userInSchool(c, admin.SchoolID)
	if target == nil {
		return errResp
	}

	var registrations []model.Registration
	if err := h.db.Preload("Course").
		Where("user_id = ?", target.ID).
		Find(&registrations).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch registrations")
	}

	return response.Success(c, fiber.Map{
		"user":          target.ToResponse(),
		"price":         target.Price,
		"registrations": registrations,
	})
}

// CreateUser handles POST /api/v1/users
func (h *UserHandler) CreateUser(c *fiber.Ctx) error {
	admin, ok := middleware.GetUser(c)
	if !ok || admin == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !admin.IsAdmin {
		return response.Forbidden(c, "Only administrators can create users")
	}

	var req CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	if ok, msg := validation.ValidateUsername(req.Username); !ok {
		return response.BadRequest(c, msg)
	}

	user, err := h.userService.CreateUser(c.Context(), services.CreateUserInput{
		SchoolID:     admin.SchoolID,
		Username:     req.Username,
		Password:     req.Password,
		FirstName:    validation.SanitizeString(req.FirstName),
		LastName:     validation.SanitizeString(req.LastName),
		Email:        req.Email,
		Phone:        validation.SanitizeString(req.Phone),
		Address:      validation.SanitizeString(req.Address),
		BirthDate:    req.BirthDate,
		PhotoURL:     req.PhotoURL,
		IsAdmin:      req.Role == model.RoleAdmin,
		IsInstructor: req.Role == model.RoleInstructor,
		IsStudent:    req.Role == model.RoleStudent || req.Role == "",
		Credits:      req.Credits,
		Price:        req.Price,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUsernameTaken):
			return response.Conflict(c, "Username is already taken")
		case errors.Is(err, services.ErrMissingUserFields):
			return response.BadRequest(c, err.Error())
		default:
			return response.InternalServerError(c, "Failed to create user")
		}
	}

	return response.Created(c, user.ToResponse())
}

// UpdateUser handles PUT /api/v1/users/:id
func (h *UserHandler) UpdateUser(c *fiber.Ctx) error {
	admin, ok := middleware.GetUser(c)
	if !ok || admin == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !admin.IsAdmin {
		return response.Forbidden(c, "Only administrators can update users")
	}

	target, errResp := h.userInSchool(c, admin.SchoolID)
	if target == nil {
		return errResp
	}

	var req UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	if req.FirstName != "" {
		target.FirstName = validation.SanitizeString(req.FirstName)
	}
	if req.LastName != "" {
		target.LastName = validation.SanitizeString(req.LastName)
	}
	if req.Email != "" {
		target.Email = req.Email
	}
	if req.Phone != "" {
		target.Phone = validation.SanitizeString(req.Phone)
	}
	if req.Address != "" {
		target.Address = validation.SanitizeString(req.Address)
	}
	if req.BirthDate != nil {
		target.BirthDate = req.BirthDate
	}
	if req.PhotoURL != "" {
		target.PhotoURL = req.PhotoURL
	}
	if req.ClearPrice {
		target.Price = nil
	} else if req.Price != nil {
		target.Price = req.Price
	}

	if err := h.db.Save(target).Error; err != nil {
		return response.InternalServerError(c, "Failed to update user")
	}

	return response.SuccessWithMessage(c, "User updated successfully", target.ToResponse())
}

// DeleteUser handles DELETE /api/v1/users/:id.
// Removes the user's attendance, grades, registrations and tokens with them.
func (h *UserHandler) DeleteUser(c *fiber.Ctx) error {
	admin, ok := middleware.GetUser(c)
	if !ok || admin == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !admin.IsAdmin {
		return response.Forbidden(c, "Only administrators can delete users")
	}

	target, errResp := h.userInSchool(c, admin.SchoolID)
	if target == nil {
		return errResp
	}

	if target.ID == admin.ID {
		return response.BadRequest(c, "You cannot delete your own account")
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", target.ID).Delete(&model.AttendanceRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", target.ID).Delete(&model.GradeRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", target.ID).Delete(&model.Registration{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", target.ID).Delete(&model.PasswordResetToken{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", target.ID).Delete(&model.UserNotification{}).Error; err != nil {
			return err
		}

		// Delete user (soft delete); invoices stay for the billing trail
		return tx.Delete(target).Error
	})
	if err != nil {
		return response.InternalServerError(c, "Failed to delete user: "+err.Error())
	}

	return response.SuccessWithMessage(c, "User and all related data deleted successfully", nil)
}

// SetRoleRequest represents the request body for changing a user's role
type SetRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=student instructor admin"`
}

// SetRole handles PUT /api/v1/users/:id/role
func (h *UserHandler) SetRole(c *fiber.Ctx) error {
	admin, ok := middleware.GetUser(c)
	if !ok || admin == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !admin.IsAdmin {
		return response.Forbidden(c, "Only administrators can change roles")
	}

	target, errResp := h.userInSchool(c, admin.SchoolID)
	if target == nil {
		return errResp
	}

	if target.ID == admin.ID {
		return response.BadRequest(c, "You cannot change your own role")
	}

	var req SetRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	updated, err := h.userService.SetRole(c.Context(), target.ID, req.Role)
	if err != nil {
		return response.InternalServerError(c, "Failed to change role")
	}

	return response.SuccessWithMessage(c, "Role updated successfully", fiber.Map{
		"user_id": updated.ID,
		"role":    req.Role,
	})
}

// AdjustCreditsRequest represents the request body for a credit adjustment.
// Delta may be negative; an adjustment that would overdraw is rejected.
type AdjustCreditsRequest struct {
	Delta int64 `json:"delta" validate:"required"`
}

// AdjustCredits handles PUT /api/v1/users/:id/credits
func (h *UserHandler) AdjustCredits(c *fiber.Ctx) error {
	admin, ok := middleware.GetUser(c)
	if !ok || admin == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !admin.IsAdmin {
		return response.Forbidden(c, "Only administrators can adjust credits")
	}

	target, errResp := h.userInSchool(c, admin.SchoolID)
	if target == nil {
		return errResp
	}

	var req AdjustCreditsRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.Delta == 0 {
		return response.BadRequest(c, "delta must be a non-zero amount")
	}

	updated, err := h.userService.AdjustCredits(c.Context(), target.ID, req.Delta)
	if err != nil {
		if errors.Is(err, services.ErrInsufficientFunds) {
			return response.BadRequest(c, "Adjustment would overdraw the user's balance")
		}
		return response.InternalServerError(c, "Failed to adjust credits")
	}

	return response.SuccessWithMessage(c, "Credits adjusted successfully", fiber.Map{
		"user_id": updated.ID,
		"credits": updated.Credits,
	})
}

// userInSchool loads the user named by the :id route param, scoped to the
// given school. On failure the second return value carries the response
// already written to the context.
func (h *UserHandler) userInSchool(c *fiber.Ctx, schoolID uint) (*model.User, error) {
	var user model.User
	if err := h.db.Where("school_id = ?", schoolID).
		First(&user, c.Params("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, response.NotFound(c, "User not found")
		}
		return nil, response.InternalServerError(c, "Failed to fetch user")
	}
	return &user, nil
}
