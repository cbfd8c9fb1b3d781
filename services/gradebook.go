package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/schoolhub-io/schoolhub/metrics"
	"github.com/schoolhub-io/schoolhub/model"
	"gorm.io/gorm"
)

// WeightPolicy is the split applied between checkpoint and daily scores when
// combining them into an overall grade. Both weights live in [0,1] and sum to 1.
type WeightPolicy struct {
	Checkpoint float64
	Daily      float64
}

// DefaultWeightPolicy is used when a caller passes a zero or invalid policy:
// checkpoint work counts for 60% of the grade, daily work for 40%.
var DefaultWeightPolicy = WeightPolicy{Checkpoint: 0.60, Daily: 0.40}

// orDefault falls back to DefaultWeightPolicy for unset or broken policies so
// grade computation can never divide by a bad weight.
func (p WeightPolicy) orDefault() WeightPolicy {
	if p.Checkpoint < 0 || p.Daily < 0 {
		return DefaultWeightPolicy
	}
	if math.Abs(p.Checkpoint+p.Daily-1.0) > 1e-9 {
		return DefaultWeightPolicy
	}
	return p
}

// AttendancePercent computes the integer attendance percentage for a set of
// recorded attendance timestamps against the scheduled class days. Both inputs
// are normalized to calendar days (UTC) and deduplicated; the result is
// round(|recorded ∩ scheduled| / |scheduled| * 100). An empty schedule yields 0.
func AttendancePercent(scheduled []time.Time, recorded []time.Time) int {
	scheduledDays := make(map[time.Time]struct{}, len(scheduled))
	for _, t := range scheduled {
		scheduledDays[truncateToDay(t)] = struct{}{}
	}

	if len(scheduledDays) == 0 {
		return 0
	}

	recordedDays := make(map[time.Time]struct{}, len(recorded))
	for _, t := range recorded {
		recordedDays[truncateToDay(t)] = struct{}{}
	}

	attended := 0
	for day := range scheduledDays {
		if _, ok := recordedDays[day]; ok {
			attended++
		}
	}

	return int(math.Round(float64(attended) / float64(len(scheduledDays)) * 100))
}

// WeightedGradeAverage combines checkpoint and daily score sets under the
// given policy. If only one category has scores its simple mean is returned,
// and two empty categories yield 0; the result is always a finite number.
func WeightedGradeAverage(checkpoint []float64, daily []float64, policy WeightPolicy) float64 {
	switch {
	case len(checkpoint) == 0 && len(daily) == 0:
		return 0
	case len(checkpoint) == 0:
		return mean(daily)
	case len(daily) == 0:
		return mean(checkpoint)
	}

	p := policy.orDefault()
	return p.Checkpoint*mean(checkpoint) + p.Daily*mean(daily)
}

// SplitScores classifies a user's grade records into checkpoint and daily
// score slices using the course's weight table. Records without a score and
// records whose assignment has no weight-table entry are excluded entirely.
func SplitScores(grades []model.GradeRecord, weights []model.GradeWeight) (checkpoint []float64, daily []float64) {
	kinds := make(map[string]bool, len(weights))
	for _, w := range weights {
		kinds[w.Assignment] = w.Checkpoint
	}

	for _, g := range grades {
		if g.Score == nil {
			continue
		}
		isCheckpoint, ok := kinds[g.Assignment]
		if !ok {
			continue
		}
		if isCheckpoint {
			checkpoint = append(checkpoint, *g.Score)
		} else {
			daily = append(daily, *g.Score)
		}
	}

	return checkpoint, daily
}

// ScheduledDays expands a course's weekday schedule into the concrete class
// days between the term start and the earlier of now and the term end,
// inclusive. Days come back as UTC midnights in ascending order. The caller
// supplies now so past-date filtering stays deterministic under test.
func ScheduledDays(days []string, term model.Term, now time.Time) []time.Time {
	weekdays := make(map[time.Weekday]struct{}, len(days))
	for _, d := range days {
		if wd, ok := parseWeekday(d); ok {
			weekdays[wd] = struct{}{}
		}
	}
	if len(weekdays) == 0 {
		return nil
	}

	start := truncateToDay(term.StartDate)
	end := truncateToDay(term.EndDate)
	if cutoff := truncateToDay(now); cutoff.Before(end) {
		end = cutoff
	}

	var out []time.Time
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if _, ok := weekdays[day.Weekday()]; ok {
			out = append(out, day)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func truncateToDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// ValidWeekday reports whether s names a weekday the scheduler understands
func ValidWeekday(s string) bool {
	_, ok := parseWeekday(s)
	return ok
}

func parseWeekday(s string) (time.Weekday, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sun", "sunday":
		return time.Sunday, true
	case "mon", "monday":
		return time.Monday, true
	case "tue", "tues", "tuesday":
		return time.Tuesday, true
	case "wed", "wednesday":
		return time.Wednesday, true
	case "thu", "thur", "thurs", "thursday":
		return time.Thursday, true
	case "fri", "friday":
		return time.Friday, true
	case "sat", "saturday":
		return time.Saturday, true
	}
	return 0, false
}

// GradebookService handles attendance tracking and grade aggregation
type GradebookService struct {
	db *gorm.DB
}

// NewGradebookService creates a new gradebook service
func NewGradebookService(db *gorm.DB) *GradebookService {
	return &GradebookService{db: db}
}

// ToggleAttendance marks the user present for the calendar day containing at,
// or unmarks it if a record for that day already exists. Returns true when
// the day ends up marked.
func (s *GradebookService) ToggleAttendance(ctx context.Context, userID uint, at time.Time, markedBy *uint) (bool, error) {
	dayStart := truncateToDay(at)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var existing int64
	err := s.db.WithContext(ctx).Model(&model.AttendanceRecord{}).
		Where("user_id = ? AND occurred_at >= ? AND occurred_at < ?", userID, dayStart, dayEnd).
		Count(&existing).Error
	if err != nil {
		return false, fmt.Errorf("failed to check attendance: %w", err)
	}

	if existing > 0 {
		err := s.db.WithContext(ctx).
			Where("user_id = ? AND occurred_at >= ? AND occurred_at < ?", userID, dayStart, dayEnd).
			Delete(&model.AttendanceRecord{}).Error
		if err != nil {
			return false, fmt.Errorf("failed to unmark attendance: %w", err)
		}
		metrics.AttendanceMarksTotal.WithLabelValues("unmark").Inc()
		return false, nil
	}

	record := model.AttendanceRecord{
		UserID:     userID,
		OccurredAt: at.UTC(),
		MarkedBy:   markedBy,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return false, fmt.Errorf("failed to mark attendance: %w", err)
	}
	metrics.AttendanceMarksTotal.WithLabelValues("mark").Inc()
	return true, nil
}

// AttendedDays returns the distinct calendar days the user has attendance
// records for, as UTC midnights.
func (s *GradebookService) AttendedDays(ctx context.Context, userID uint) ([]time.Time, error) {
	var records []model.AttendanceRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("occurred_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attendance: %w", err)
	}

	seen := make(map[time.Time]struct{}, len(records))
	var days []time.Time
	for _, r := range records {
		day := truncateToDay(r.OccurredAt)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	return days, nil
}

// CourseAttendancePercent computes the user's attendance percentage for a
// course: attended class days over the course's scheduled days up to now.
func (s *GradebookService) CourseAttendancePercent(ctx context.Context, userID, courseID uint, now time.Time) (int, error) {
	var course model.Course
	err := s.db.WithContext(ctx).Preload("Term").First(&course, courseID).Error
	if err != nil {
		return 0, fmt.Errorf("failed to fetch course: %w", err)
	}

	days, err := decodeCourseDays(course.Days)
	if err != nil {
		return 0, fmt.Errorf("failed to decode course schedule: %w", err)
	}

	scheduled := ScheduledDays(days, course.Term, now)

	var records []model.AttendanceRecord
	err = s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&records).Error
	if err != nil {
		return 0, fmt.Errorf("failed to fetch attendance: %w", err)
	}

	recorded := make([]time.Time, 0, len(records))
	for _, r := range records {
		recorded = append(recorded, r.OccurredAt)
	}

	return AttendancePercent(scheduled, recorded), nil
}

// CourseGradeAverage computes the user's weighted grade for a course using
// the course's weight table and the given policy.
func (s *GradebookService) CourseGradeAverage(ctx context.Context, userID, courseID uint, policy WeightPolicy) (float64, error) {
	var weights []model.GradeWeight
	err := s.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Find(&weights).Error
	if err != nil {
		return 0, fmt.Errorf("failed to fetch grade weights: %w", err)
	}

	var grades []model.GradeRecord
	err = s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&grades).Error
	if err != nil {
		return 0, fmt.Errorf("failed to fetch grades: %w", err)
	}

	checkpoint, daily := SplitScores(grades, weights)
	return WeightedGradeAverage(checkpoint, daily, policy), nil
}

func decodeCourseDays(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var days []string
	if err := json.Unmarshal(raw, &days); err != nil {
		return nil, err
	}
	return days, nil
}
