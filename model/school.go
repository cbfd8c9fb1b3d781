package model

import (
	"time"

	"gorm.io/gorm"
)

// School represents a tenant: one organization whose users, terms and courses
// are isolated from every other school's data
type School struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null;uniqueIndex" json:"name"`
	Code      string         `gorm:"uniqueIndex;not null" json:"code"` // e.g., "GHS", "WESTSIDE"
	Address   string         `gorm:"type:varchar(255)" json:"address"`
	Phone     string         `gorm:"type:varchar(30)" json:"phone"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Users   []User   `gorm:"foreignKey:SchoolID;constraint:OnDelete:CASCADE" json:"users,omitempty"`
	Terms   []Term   `gorm:"foreignKey:SchoolID;constraint:OnDelete:CASCADE" json:"terms,omitempty"`
	Courses []Course `gorm:"foreignKey:SchoolID;constraint:OnDelete:CASCADE" json:"courses,omitempty"`
}
