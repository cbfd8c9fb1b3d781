package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/services"
	authutil "github.com/schoolhub-io/schoolhub/utils/auth"
	"github.com/schoolhub-io/schoolhub/utils/middleware"
	"github.com/schoolhub-io/schoolhub/utils/response"
	"github.com/schoolhub-io/schoolhub/utils/validation"
	"gorm.io/gorm"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	db                   *gorm.DB
	jwtManager           *authutil.JWTManager
	blacklistService     *authutil.BlacklistService
	bruteForceProtection *middleware.BruteForceProtection
	userService          *services.UserService
	emailService         *services.EmailService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(db *gorm.DB, jwtManager *authutil.JWTManager, bruteForceProtection *middleware.BruteForceProtection) *AuthHandler {
	return &AuthHandler{
		db:                   db,
		jwtManager:           jwtManager,
		blacklistService:     authutil.NewBlacklistService(db),
		bruteForceProtection: bruteForceProtection,
		userService:          services.NewUserService(db),
		emailService:         services.NewEmailService(),
	}
}

// RegisterRequest represents a self-registration request. Self-registered
// users always join as students; instructor and admin accounts are created by
// an admin.
type RegisterRequest struct {
	SchoolCode string `json:"school_code" validate:"required"`
	Username   string `json:"username" validate:"required"`
	Password   string `json:"password" validate:"required,min=8"`
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// AuthResponse represents a successful registration or login response
type AuthResponse struct {
	User         model.UserResponse `json:"user"`
	AccessToken  string             `json:"access_token"`
	RefreshToken string             `json:"refresh_token"`
	ExpiresIn    int                `json:"expires_in"` // in seconds
}

// Register handles student self-registration against a school code
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	// Validate request
	if req.SchoolCode == "" || req.Username == "" || req.Password == "" ||
		req.FirstName == "" || req.LastName == "" {
		return response.BadRequest(c, "School code, username, password, first name and last name are required")
	}

	if ok, msg := validation.ValidateUsername(req.Username); !ok {
		return response.BadRequest(c, msg)
	}

	// Validate password strength
	if !authutil.IsPasswordValid(req.Password) {
		return response.BadRequest(c, "Password must be at least 8 characters long")
	}

	if !h.registrationEnabled(c) {
		return response.Forbidden(c, "Self-registration is currently disabled")
	}

	// Resolve the school by its code
	schoolCode := strings.ToUpper(strings.TrimSpace(req.SchoolCode))
	var school model.School
	if err := h.db.Where("code = ? AND is_active = ?", schoolCode, true).First(&school).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "School not found")
		}
		return response.InternalServerError(c, "Failed to look up school")
	}

	user, err := h.userService.CreateUser(c.Context(), services.CreateUserInput{
		SchoolID:  school.ID,
		Username:  req.Username,
		Password:  req.Password,
		FirstName: validation.SanitizeString(req.FirstName),
		LastName:  validation.SanitizeString(req.LastName),
		Email:     req.Email,
		Phone:     req.Phone,
		IsStudent: true,
	})
	if err != nil {
		if errors.Is(err, services.ErrUsernameTaken) {
			return response.Conflict(c, "Username is already taken")
		}
		if errors.Is(err, services.ErrMissingUserFields) {
			return response.BadRequest(c, err.Error())
		}
		return response.InternalServerError(c, "Failed to create user")
	}

	// Welcome email is best-effort and must not block registration
	if user.Email != "" && h.emailService.IsConfigured() {
		go h.emailService.SendWelcomeEmail(user.Email, user.FullName(), user.Username, school.Name)
	}

	// Generate tokens with token version
	accessToken, accessJTI, err := h.jwtManager.GenerateAccessToken(user.ID, user.SchoolID, user.Username, user.Role(), user.TokenVersion)
	if err != nil {
		return response.InternalServerError(c, "Failed to generate access token")
	}

	refreshToken, refreshJTI, err := h.jwtManager.GenerateRefreshToken(user.ID, user.SchoolID, user.Username, user.Role(), user.TokenVersion)
	if err != nil {
		return response.InternalServerError(c, "Failed to generate refresh token")
	}

	// Store JTI for potential tracking (optional)
	_ = accessJTI
	_ = refreshJTI

	res := AuthResponse{
		User:         user.ToResponse(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    24 * 60 * 60, // 24 hours in seconds
	}

	return response.Created(c, res)
}

// registrationEnabled reads the feature flag; missing or unreadable means on
func (h *AuthHandler) registrationEnabled(c *fiber.Ctx) bool {
	var setting model.AppSetting
	err := h.db.WithContext(c.Context()).
		Where("key = ?", "feature.registration_enabled").
		First(&setting).Error
	if err != nil {
		return true
	}
	return setting.Value != "false"
}
