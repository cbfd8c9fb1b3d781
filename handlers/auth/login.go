package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/schoolhub-io/schoolhub/metrics"
	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/utils/auth"
	"github.com/schoolhub-io/schoolhub/utils/response"
)

// LoginRequest represents a user login request
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login handles user login by username
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	// Validate request
	if req.Username == "" || req.Password == "" {
		return response.BadRequest(c, "Username and password are required")
	}

	ip := c.IP()
	username := model.NormalizeUsername(req.Username)

	// Account-level lock is checked here; the route middleware already
	// gated on the IP-level lock
	if h.bruteForceProtection != nil {
		if locked, _ := h.bruteForceProtection.IsUserLocked(c, username); locked {
			metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
			return response.TooManyRequests(c, "Account temporarily locked due to failed login attempts")
		}
	}

	// Find user by username
	var user model.User
	if err := h.db.Where("username = ?", username).First(&user).Error; err != nil {
		// Record failed attempt even if user not found
		if h.bruteForceProtection != nil {
			h.bruteForceProtection.RecordFailedAttempt(c, ip, username)
		}
		metrics.LoginAttemptsTotal.WithLabelValues("failure").Inc()
		return response.Unauthorized(c, "Invalid username or password")
	}

	// Verify password
	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		// Record failed attempt
		if h.bruteForceProtection != nil {
			h.bruteForceProtection.RecordFailedAttempt(c, ip, username)
		}
		metrics.LoginAttemptsTotal.WithLabelValues("failure").Inc()
		return response.Unauthorized(c, "Invalid username or password")
	}

	// Clear failed attempts on successful login
	if h.bruteForceProtection != nil {
		h.bruteForceProtection.RecordSuccessfulAttempt(c, ip, username)
	}
	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()

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

	return response.Success(c, res)
}
