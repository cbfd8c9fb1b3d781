package model

import (
	"time"
)

// AttendanceRecord marks a user present at some moment. Business logic treats
// records at calendar-day granularity: two timestamps on the same day are the
// same attendance, and toggling a day that already has a record removes it.
type AttendanceRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;index:idx_attendance_user" json:"user_id"`
	OccurredAt time.Time `gorm:"not null;index" json:"occurred_at"`
	MarkedBy   *uint     `json:"marked_by,omitempty"` // instructor who toggled, nil = self
	CreatedAt  time.Time `json:"created_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for AttendanceRecord
func (AttendanceRecord) TableName() string {
	return "attendance_records"
}

// Day truncates the record's timestamp to its calendar day in UTC
func (a *AttendanceRecord) Day() time.Time {
	y, m, d := a.OccurredAt.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CourseAttendanceSummary is a cached roster snapshot with per-student
// attendance percentages. Refreshed hourly for courses in a current term.
type CourseAttendanceSummary struct {
	CourseID      uint                   `json:"course_id"`
	CourseName    string                 `json:"course_name"`
	ScheduledDays int                    `json:"scheduled_days"`
	Rows          []AttendanceSummaryRow `json:"rows"`
	RefreshedAt   time.Time              `json:"refreshed_at"`
}

// AttendanceSummaryRow is one student's line in a course attendance summary
type AttendanceSummaryRow struct {
	UserID            uint   `json:"user_id"`
	IDN               int    `json:"idn"`
	Username          string `json:"username"`
	AttendancePercent int    `json:"attendance_percent"`
}

// RedisKeyAttendanceSummary stores a course's attendance summary as JSON
// Usage: fmt.Sprintf(RedisKeyAttendanceSummary, courseID)
const RedisKeyAttendanceSummary = "attendance:summary:%d"
