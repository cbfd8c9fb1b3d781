package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Course represents a scheduled class within a term. Days holds the weekday
// names the course meets on (e.g., ["Monday","Wednesday"]) as a JSON column;
// actual session dates are derived from the term's date range.
type Course struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	SchoolID    uint           `gorm:"not null;index" json:"school_id"`
	TermID      uint           `gorm:"not null;index" json:"term_id"`
	Name        string         `gorm:"not null" json:"name"`
	Code        string         `gorm:"not null;uniqueIndex" json:"code"` // e.g., "MATH-201"
	Description string         `gorm:"type:text" json:"description"`
	Days        datatypes.JSON `gorm:"type:jsonb" json:"days"`
	Price       int64          `gorm:"default:0" json:"price"`    // credits required to register
	Capacity    int            `gorm:"default:0" json:"capacity"` // 0 = unlimited

	// Relationships
	School        School         `gorm:"foreignKey:SchoolID" json:"school,omitempty"`
	Term          Term           `gorm:"foreignKey:TermID" json:"term,omitempty"`
	GradeWeights  []GradeWeight  `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"grade_weights,omitempty"`
	Registrations []Registration `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
}

// Registration represents a user's enrollment in a course
type Registration struct {
	UserID     uint      `gorm:"primaryKey" json:"user_id"`
	CourseID   uint      `gorm:"primaryKey" json:"course_id"`
	EnrolledAt time.Time `gorm:"autoCreateTime" json:"enrolled_at"`

	// Relationships
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Course Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"course,omitempty"`
}

// TableName specifies the table name for Registration
func (Registration) TableName() string {
	return "registrations"
}
