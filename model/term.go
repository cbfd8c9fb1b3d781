package model

import (
	"time"

	"gorm.io/gorm"
)

// TermStatus classifies a term relative to a point in time
type TermStatus string

const (
	TermStatusPast    TermStatus = "past"
	TermStatusCurrent TermStatus = "current"
	TermStatusFuture  TermStatus = "future"
)

// Term represents an academic term: a named date range courses are scheduled in
type Term struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	SchoolID  uint           `gorm:"not null;index" json:"school_id"`
	Name      string         `gorm:"not null" json:"name"` // e.g., "Fall 2026"
	StartDate time.Time      `gorm:"not null" json:"start_date"`
	EndDate   time.Time      `gorm:"not null" json:"end_date"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	School  School   `gorm:"foreignKey:SchoolID" json:"school,omitempty"`
	Courses []Course `gorm:"foreignKey:TermID;constraint:OnDelete:CASCADE" json:"courses,omitempty"`
}

// Status classifies the term against the given time. The caller supplies now
// so the classification stays deterministic under test.
func (t *Term) Status(now time.Time) TermStatus {
	switch {
	case t.EndDate.Before(now):
		return TermStatusPast
	case t.StartDate.After(now):
		return TermStatusFuture
	default:
		return TermStatusCurrent
	}
}
