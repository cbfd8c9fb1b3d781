package admin

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/schoolhub-io/schoolhub/database"
	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/utils/auth"
	"github.com/schoolhub-io/schoolhub/utils/response"
	"gorm.io/gorm"
)

// ResetPasswordRequest represents the request for admin password reset
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// ResetUserPassword allows admin to reset a user's password
// POST /admin/users/:id/reset-password
func ResetUserPassword(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	adminUser, ok := c.Locals("adminUser").(model.User)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	// Parse user ID
	userID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid user ID")
	}

	// Parse request body
	var req ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	// Validate password length
	if len(req.NewPassword) < 8 {
		return response.BadRequest(c, "Password must be at least 8 characters")
	}

	// Get user within the admin's school
	var user model.User
	if err := db.Where("school_id = ?", adminUser.SchoolID).First(&user, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "User not found")
		}
		return response.InternalServerError(c, "Failed to fetch user")
	}

	// Hash new password
	hashedPassword, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return response.InternalServerError(c, "Failed to hash password")
	}

	// Update user password and increment token version (invalidate all tokens)
	if err := db.Model(&user).Updates(map[string]interface{}{
		"password_hash": hashedPassword,
		"token_version": user.TokenVersion + 1,
	}).Error; err != nil {
		return response.InternalServerError(c, "Failed to update password")
	}

	return response.SuccessWithMessage(c, "Password reset successfully", fiber.Map{
		"user_id": userID,
		"message": "All user sessions have been invalidated",
	})
}

// GetUserStats retrieves per-school user statistics
// GET /admin/users/stats
func GetUserStats(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	adminUser, ok := c.Locals("adminUser").(model.User)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	var stats struct {
		TotalUsers      int64
		AdminUsers      int64
		InstructorUsers int64
		StudentUsers    int64
		NewThisWeek     int64
		NewThisMonth    int64
	}

	schoolID := adminUser.SchoolID

	// Fetch all counts
	db.Model(&model.User{}).Where("school_id = ?", schoolID).Count(&stats.TotalUsers)
	db.Model(&model.User{}).Where("school_id = ? AND is_admin = ?", schoolID, true).Count(&stats.AdminUsers)
	db.Model(&model.User{}).Where("school_id = ? AND is_instructor = ?", schoolID, true).Count(&stats.InstructorUsers)
	db.Model(&model.User{}).Where("school_id = ? AND is_student = ?", schoolID, true).Count(&stats.StudentUsers)

	// Recent signups
	db.Model(&model.User{}).
		Where("school_id = ? AND created_at >= ?", schoolID, time.Now().Add(-7*24*time.Hour)).
		Count(&stats.NewThisWeek)
	db.Model(&model.User{}).
		Where("school_id = ? AND created_at >= ?", schoolID, time.Now().Add(-30*24*time.Hour)).
		Count(&stats.NewThisMonth)

	return response.SuccessWithMessage(c, "User statistics retrieved successfully", stats)
}
