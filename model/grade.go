package model

import (
	"time"

	"gorm.io/gorm"
)

// GradeRecord stores one user's score for a named assignment. Score is nullable:
// a nil score means the assignment was handed out but not yet graded, and such
// records are excluded from every average.
type GradeRecord struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
	UserID     uint           `gorm:"not null;uniqueIndex:idx_grades_user_assignment" json:"user_id"`
	Assignment string         `gorm:"not null;uniqueIndex:idx_grades_user_assignment" json:"assignment"`
	Score      *float64       `json:"score"`
	GradedBy   *uint          `json:"graded_by,omitempty"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for GradeRecord
func (GradeRecord) TableName() string {
	return "grade_records"
}

// GradeWeight is one row of a course's grade-weight table. An assignment only
// counts toward the course average when a row with its name exists here;
// Checkpoint decides which side of the checkpoint/daily split it lands on.
type GradeWeight struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
	CourseID   uint           `gorm:"not null;uniqueIndex:idx_weights_course_assignment" json:"course_id"`
	Assignment string         `gorm:"not null;uniqueIndex:idx_weights_course_assignment" json:"assignment"`
	Checkpoint bool           `gorm:"default:false" json:"checkpoint"`

	// Relationships
	Course Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for GradeWeight
func (GradeWeight) TableName() string {
	return "grade_weights"
}
