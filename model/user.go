package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Role names derived from the boolean role flags
const (
	RoleAdmin      = "admin"
	RoleInstructor = "instructor"
	RoleStudent    = "student"
)

// User represents a registered member of a school: student, instructor or admin.
// IDN is the school-facing sequence number assigned at creation time and is
// distinct from the database primary key; it increases by one per created user
// within a school.
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	SchoolID     uint           `gorm:"not null;index;uniqueIndex:idx_users_school_idn" json:"school_id"`
	IDN          int            `gorm:"not null;uniqueIndex:idx_users_school_idn" json:"idn"`
	Username     string         `gorm:"uniqueIndex;not null" json:"username"` // stored lower-case, unique across schools
	FirstName    string         `gorm:"not null" json:"first_name"`
	LastName     string         `gorm:"not null" json:"last_name"`
	Email        string         `gorm:"index" json:"email"`
	Phone        string         `gorm:"type:varchar(30)" json:"phone"`
	Address      string         `gorm:"type:varchar(255)" json:"address"`
	BirthDate    *time.Time     `json:"birth_date,omitempty"`
	PhotoURL     string         `gorm:"type:varchar(255)" json:"photo_url"`
	IsAdmin      bool           `gorm:"default:false" json:"is_admin"`
	IsInstructor bool           `gorm:"default:false" json:"is_instructor"`
	IsStudent    bool           `gorm:"default:true" json:"is_student"`
	Credits      int64          `gorm:"default:0" json:"credits"` // prepaid balance in minor currency units
	Price        *int64         `json:"price,omitempty"`          // per-user price override, nil = course price applies
	PasswordHash string         `gorm:"not null" json:"-"`        // Never expose password in JSON
	TokenVersion int            `gorm:"default:0" json:"-"`       // Increment to invalidate all user tokens

	// Relationships
	School        School              `gorm:"foreignKey:SchoolID" json:"school,omitempty"`
	Attendance    []AttendanceRecord  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Grades        []GradeRecord       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Registrations []Registration      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Invoices      []Invoice           `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	TokenRevokes  []JWTTokenBlacklist `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// FullName returns "First Last"
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Role returns the highest-privilege role name for the user's flags.
// Admin wins over instructor wins over student.
func (u *User) Role() string {
	switch {
	case u.IsAdmin:
		return RoleAdmin
	case u.IsInstructor:
		return RoleInstructor
	default:
		return RoleStudent
	}
}

// NormalizeUsername lower-cases and trims a username the way it is stored
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// UserResponse represents user data in API responses
type UserResponse struct {
	ID           uint       `json:"id"`
	SchoolID     uint       `json:"school_id"`
	IDN          int        `json:"idn"`
	Username     string     `json:"username"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	PhotoURL     string     `json:"photo_url"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	Role         string     `json:"role"`
	IsAdmin      bool       `json:"is_admin"`
	IsInstructor bool       `json:"is_instructor"`
	IsStudent    bool       `json:"is_student"`
	Credits      int64      `json:"credits"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ToResponse converts a User to UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:           u.ID,
		SchoolID:     u.SchoolID,
		IDN:          u.IDN,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		Phone:        u.Phone,
		PhotoURL:     u.PhotoURL,
		BirthDate:    u.BirthDate,
		Role:         u.Role(),
		IsAdmin:      u.IsAdmin,
		IsInstructor: u.IsInstructor,
		IsStudent:    u.IsStudent,
		Credits:      u.Credits,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}
