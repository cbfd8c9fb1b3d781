package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/utils/auth"
	"gorm.io/gorm"
)

// Errors returned by user creation and mutation
var (
	ErrUsernameTaken     = errors.New("username already taken")
	ErrMissingUserFields = errors.New("username, first name and last name are required")
	ErrInsufficientFunds = errors.New("insufficient credits")
)

// CreateUserInput carries everything needed to create one user. Role flags
// default to student when none is set.
type CreateUserInput struct {
	SchoolID     uint
	Username     string
	Password     string
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Address      string
	BirthDate    *time.Time
	PhotoURL     string
	IsAdmin      bool
	IsInstructor bool
	IsStudent    bool
	Credits      int64
	Price        *int64
}

// UserService is the single-user creation and mutation path. Bulk imports go
// through ImporterService; everything else that makes a user goes through here
// so idn assignment stays in one place.
type UserService struct {
	db *gorm.DB
}

// NewUserService creates a new user service
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// CreateUser creates one user inside a transaction: the username is normalized
// and checked for uniqueness across all schools, the user gets the school's
// next idn, and the password is hashed before persisting. The unique index on
// (school_id, idn) backstops concurrent creations racing for the same idn.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*model.User, error) {
	username := model.NormalizeUsername(input.Username)
	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)

	if username == "" || firstName == "" || lastName == "" {
		return nil, ErrMissingUserFields
	}

	passwordHash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		SchoolID:     input.SchoolID,
		Username:     username,
		FirstName:    firstName,
		LastName:     lastName,
		Email:        strings.TrimSpace(input.Email),
		Phone:        strings.TrimSpace(input.Phone),
		Address:      strings.TrimSpace(input.Address),
		BirthDate:    input.BirthDate,
		PhotoURL:     input.PhotoURL,
		IsAdmin:      input.IsAdmin,
		IsInstructor: input.IsInstructor,
		IsStudent:    input.IsStudent,
		Credits:      input.Credits,
		Price:        input.Price,
		PasswordHash: passwordHash,
	}

	if !user.IsAdmin && !user.IsInstructor {
		user.IsStudent = true
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check username: %w", err)
		}
		if count > 0 {
			return ErrUsernameTaken
		}

		var maxIDN int
		if err := tx.Model(&model.User{}).
			Where("school_id = ?", input.SchoolID).
			Select("COALESCE(MAX(idn), 0)").
			Scan(&maxIDN).Error; err != nil {
			return fmt.Errorf("failed to fetch max idn: %w", err)
		}
		user.IDN = maxIDN + 1

		return tx.Create(user).Error
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// SetRole replaces the user's role flags with the named role. Session tokens
// carry the old role until they expire; bump the token version separately to
// force re-login.
func (s *UserService) SetRole(ctx context.Context, userID uint, role string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"is_admin":      role == model.RoleAdmin,
		"is_instructor": role == model.RoleInstructor,
		"is_student":    role == model.RoleStudent,
	}
	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return nil, err
	}

	return &user, nil
}

// AdjustCredits applies a signed delta to the user's credit balance. A delta
// that would push the balance below zero is rejected; the guard lives in the
// UPDATE's WHERE clause so concurrent spends cannot overdraw.
func (s *UserService) AdjustCredits(ctx context.Context, userID uint, delta int64) (*model.User, error) {
	var user model.User

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, userID).Error; err != nil {
			return err
		}

		result := tx.Model(&model.User{}).
			Where("id = ? AND credits + ? >= 0", userID, delta).
			UpdateColumn("credits", gorm.Expr("credits + ?", delta))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrInsufficientFunds
		}

		return tx.First(&user, userID).Error
	})
	if err != nil {
		return nil, err
	}

	return &user, nil
}
