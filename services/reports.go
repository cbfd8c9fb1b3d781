package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/schoolhub-io/schoolhub/metrics"
	"github.com/schoolhub-io/schoolhub/model"
)

var ErrCourseNotFound = errors.New("course not found")

// ReportService assembles aggregate views over courses and schools
type ReportService struct {
	db *gorm.DB
}

// NewReportService creates a new report service
func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{db: db}
}

// DashboardReport is the admin landing summary for one school
type DashboardReport struct {
	SchoolID           uint      `json:"school_id"`
	TotalStudents      int64     `json:"total_students"`
	TotalInstructors   int64     `json:"total_instructors"`
	TotalCourses       int64     `json:"total_courses"`
	TotalRegistrations int64     `json:"total_registrations"`
	PaidInvoices       int64     `json:"paid_invoices"`
	RevenueCollected   int64     `json:"revenue_collected"` // minor currency units
	GeneratedAt        time.Time `json:"generated_at"`
}

// BuildDashboard counts the school's students, instructors, courses,
// registrations and collected revenue
func (s *ReportService) BuildDashboard(ctx context.Context, schoolID uint) (*DashboardReport, error) {
	timer := prometheus.NewTimer(metrics.ReportBuildDuration.WithLabelValues("dashboard"))
	defer timer.ObserveDuration()

	report := &DashboardReport{
		SchoolID:    schoolID,
		GeneratedAt: time.Now(),
	}

	db := s.db.WithContext(ctx)

	err := db.Model(&model.User{}).
		Where("school_id = ? AND is_student = ?", schoolID, true).
		Count(&report.TotalStudents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count students: %w", err)
	}

	err = db.Model(&model.User{}).
		Where("school_id = ? AND is_instructor = ?", schoolID, true).
		Count(&report.TotalInstructors).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count instructors: %w", err)
	}

	err = db.Model(&model.Course{}).
		Where("school_id = ?", schoolID).
		Count(&report.TotalCourses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count courses: %w", err)
	}

	err = db.Model(&model.Registration{}).
		Joins("JOIN courses ON courses.id = registrations.course_id").
		Where("courses.school_id = ? AND courses.deleted_at IS NULL", schoolID).
		Count(&report.TotalRegistrations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count registrations: %w", err)
	}

	err = db.Model(&model.Invoice{}).
		Where("school_id = ? AND status = ?", schoolID, model.InvoiceStatusPaid).
		Count(&report.PaidInvoices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count paid invoices: %w", err)
	}

	var revenue *int64
	err = db.Model(&model.Invoice{}).
		Where("school_id = ? AND status = ?", schoolID, model.InvoiceStatusPaid).
		Select("SUM(amount)").
		Scan(&revenue).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	if revenue != nil {
		report.RevenueCollected = *revenue
	}

	return report, nil
}

// CourseReportRow is one enrolled student's line in a course report
type CourseReportRow struct {
	UserID            uint    `json:"user_id"`
	IDN               int     `json:"idn"`
	Username          string  `json:"username"`
	FullName          string  `json:"full_name"`
	AttendancePercent int     `json:"attendance_percent"`
	GradeAverage      float64 `json:"grade_average"`
}

// CourseReport carries the roster of a course with each student's attendance
// percentage and weighted grade average
type CourseReport struct {
	CourseID      uint              `json:"course_id"`
	CourseName    string            `json:"course_name"`
	CourseCode    string            `json:"course_code"`
	TermName      string            `json:"term_name"`
	ScheduledDays int               `json:"scheduled_days"`
	Rows          []CourseReportRow `json:"rows"`
	GeneratedAt   time.Time         `json:"generated_at"`
}

// BuildCourseReport computes attendance percentages and weighted grade
// averages for every student registered in the course. Scheduled days are
// those on or before now.
func (s *ReportService) BuildCourseReport(ctx context.Context, courseID uint, now time.Time) (*CourseReport, error) {
	timer := prometheus.NewTimer(metrics.ReportBuildDuration.WithLabelValues("course"))
	defer timer.ObserveDuration()

	db := s.db.WithContext(ctx)

	var course model.Course
	err := db.Preload("Term").Preload("GradeWeights").First(&course, courseID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to fetch course: %w", err)
	}

	days, err := decodeCourseDays(course.Days)
	if err != nil {
		return nil, fmt.Errorf("failed to decode course days: %w", err)
	}

	// Scheduled dates and the weight table are shared by every row
	scheduled := ScheduledDays(days, course.Term, now)

	var registrations []model.Registration
	err = db.Preload("User").
		Where("course_id = ?", courseID).
		Find(&registrations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch registrations: %w", err)
	}

	report := &CourseReport{
		CourseID:      course.ID,
		CourseName:    course.Name,
		CourseCode:    course.Code,
		TermName:      course.Term.Name,
		ScheduledDays: len(scheduled),
		Rows:          make([]CourseReportRow, 0, len(registrations)),
		GeneratedAt:   now,
	}

	for _, reg := range registrations {
		var attendance []model.AttendanceRecord
		err = db.Where("user_id = ?", reg.UserID).Find(&attendance).Error
		if err != nil {
			return nil, fmt.Errorf("failed to fetch attendance for user %d: %w", reg.UserID, err)
		}

		recorded := make([]time.Time, 0, len(attendance))
		for _, a := range attendance {
			recorded = append(recorded, a.OccurredAt)
		}

		var grades []model.GradeRecord
		err = db.Where("user_id = ?", reg.UserID).Find(&grades).Error
		if err != nil {
			return nil, fmt.Errorf("failed to fetch grades for user %d: %w", reg.UserID, err)
		}

		checkpoint, daily := SplitScores(grades, course.GradeWeights)

		report.Rows = append(report.Rows, CourseReportRow{
			UserID:            reg.UserID,
			IDN:               reg.User.IDN,
			Username:          reg.User.Username,
			FullName:          reg.User.FullName(),
			AttendancePercent: AttendancePercent(scheduled, recorded),
			GradeAverage:      WeightedGradeAverage(checkpoint, daily, DefaultWeightPolicy),
		})
	}

	return report, nil
}

// ExportCourseReportXLSX renders a course report as an XLSX workbook
func (s *ReportService) ExportCourseReportXLSX(ctx context.Context, courseID uint, now time.Time) ([]byte, string, error) {
	report, err := s.BuildCourseReport(ctx, courseID, now)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Course Report"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"IDN", "Username", "Full Name", "Attendance %", "Grade Average"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	for i, row := range report.Rows {
		rowNum := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", rowNum), row.IDN)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", rowNum), row.Username)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", rowNum), row.FullName)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", rowNum), row.AttendancePercent)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", rowNum), row.GradeAverage)
	}

	summaryRow := len(report.Rows) + 3
	f.SetCellValue(sheetName, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("%s (%s), %s", report.CourseName, report.CourseCode, report.TermName))
	f.SetCellValue(sheetName, fmt.Sprintf("A%d", summaryRow+1), fmt.Sprintf("Scheduled days so far: %d", report.ScheduledDays))
	f.SetCellValue(sheetName, fmt.Sprintf("A%d", summaryRow+2), fmt.Sprintf("Generated: %s", report.GeneratedAt.Format("2006-01-02 15:04")))

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, "", fmt.Errorf("failed to write workbook: %w", err)
	}

	fileName := fmt.Sprintf("course_%d_report_%s.xlsx", report.CourseID, now.Format("20060102_150405"))
	return buf.Bytes(), fileName, nil
}
