package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/schoolhub-io/schoolhub/model"
)

// setupReportTestDB connects to the integration test database and migrates
// the tables this suite touches.
func setupReportTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=true to run.")
	}

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER_NAME"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&model.School{}, &model.User{}, &model.Term{}, &model.Course{},
		&model.Registration{}, &model.AttendanceRecord{}, &model.GradeRecord{},
		&model.GradeWeight{}, &model.Invoice{},
	)
	require.NoError(t, err)

	return db
}

// seedReportCourse builds a school with one course scheduled mon+wed for
// January 2025 and two registered students.
func seedReportCourse(t *testing.T, db *gorm.DB) (model.School, model.Course, model.User, model.User) {
	t.Helper()
	nano := time.Now().UnixNano()

	school := model.School{Name: fmt.Sprintf("Report Test %d", nano), Code: fmt.Sprintf("RP%d", nano%100000), IsActive: true}
	require.NoError(t, db.Create(&school).Error)

	term := model.Term{
		SchoolID:  school.ID,
		Name:      "Winter 2025",
		StartDate: day(2025, time.January, 1),
		EndDate:   day(2025, time.January, 31),
	}
	require.NoError(t, db.Create(&term).Error)

	course := model.Course{
		SchoolID: school.ID,
		TermID:   term.ID,
		Name:     "Algebra",
		Code:     fmt.Sprintf("ALG-%d", nano%100000),
		Days:     datatypes.JSON([]byte(`["mon","wed"]`)),
	}
	require.NoError(t, db.Create(&course).Error)

	weights := []model.GradeWeight{
		{CourseID: course.ID, Assignment: "midterm", Checkpoint: true},
		{CourseID: course.ID, Assignment: "homework-1", Checkpoint: false},
	}
	require.NoError(t, db.Create(&weights).Error)

	alice := model.User{
		SchoolID: school.ID, IDN: 1,
		Username:  fmt.Sprintf("report.alice.%d", nano),
		FirstName: "Alice", LastName: "Anders", IsStudent: true,
	}
	bob := model.User{
		SchoolID: school.ID, IDN: 2,
		Username:  fmt.Sprintf("report.bob.%d", nano),
		FirstName: "Bob", LastName: "Brook", IsStudent: true,
	}
	require.NoError(t, db.Create(&alice).Error)
	require.NoError(t, db.Create(&bob).Error)

	require.NoError(t, db.Create(&model.Registration{UserID: alice.ID, CourseID: course.ID}).Error)
	require.NoError(t, db.Create(&model.Registration{UserID: bob.ID, CourseID: course.ID}).Error)

	t.Cleanup(func() {
		db.Where("course_id = ?", course.ID).Delete(&model.Registration{})
		db.Unscoped().Where("course_id = ?", course.ID).Delete(&model.GradeWeight{})
		for _, id := range []uint{alice.ID, bob.ID} {
			db.Where("user_id = ?", id).Delete(&model.AttendanceRecord{})
			db.Unscoped().Where("user_id = ?", id).Delete(&model.GradeRecord{})
		}
		db.Unscoped().Delete(&course)
		db.Unscoped().Delete(&term)
		db.Unscoped().Delete(&alice)
		db.Unscoped().Delete(&bob)
		db.Unscoped().Delete(&school)
	})

	return school, course, alice, bob
}

func TestBuildCourseReport_Integration(t *testing.T) {
	db := setupReportTestDB(t)
	ctx := context.Background()
	svc := NewReportService(db)
	score := func(v float64) *float64 { return &v }

	_, course, alice, bob := seedReportCourse(t, db)

	// Jan 2025 mon+wed through the 15th: 1, 6, 8, 13, 15. Five scheduled
	// days, Alice attends three of them.
	for _, d := range []time.Time{
		day(2025, time.January, 1),
		day(2025, time.January, 6),
		day(2025, time.January, 8),
	} {
		require.NoError(t, db.Create(&model.AttendanceRecord{UserID: alice.ID, OccurredAt: d.Add(9 * time.Hour)}).Error)
	}

	grades := []model.GradeRecord{
		{UserID: alice.ID, Assignment: "midterm", Score: score(90)},
		{UserID: alice.ID, Assignment: "homework-1", Score: score(80)},
		{UserID: alice.ID, Assignment: "untracked-extra", Score: score(10)},
		{UserID: bob.ID, Assignment: "homework-1", Score: score(70)},
	}
	require.NoError(t, db.Create(&grades).Error)

	now := time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC)
	report, err := svc.BuildCourseReport(ctx, course.ID, now)
	require.NoError(t, err)

	assert.Equal(t, course.ID, report.CourseID)
	assert.Equal(t, "Winter 2025", report.TermName)
	assert.Equal(t, 5, report.ScheduledDays)
	require.Len(t, report.Rows, 2)

	byUsername := make(map[string]CourseReportRow, len(report.Rows))
	for _, row := range report.Rows {
		byUsername[row.Username] = row
	}

	aliceRow := byUsername[alice.Username]
	assert.Equal(t, 60, aliceRow.AttendancePercent)
	assert.InDelta(t, 0.6*90+0.4*80, aliceRow.GradeAverage, 1e-9)
	assert.Equal(t, "Alice Anders", aliceRow.FullName)

	bobRow := byUsername[bob.Username]
	assert.Equal(t, 0, bobRow.AttendancePercent)
	assert.InDelta(t, 70, bobRow.GradeAverage, 1e-9)
}

func TestBuildCourseReport_NotFound(t *testing.T) {
	db := setupReportTestDB(t)

	_, err := NewReportService(db).BuildCourseReport(context.Background(), 0, time.Now())
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestExportCourseReportXLSX_Integration(t *testing.T) {
	db := setupReportTestDB(t)
	ctx := context.Background()
	svc := NewReportService(db)

	_, course, _, _ := seedReportCourse(t, db)

	now := time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC)
	data, fileName, err := svc.ExportCourseReportXLSX(ctx, course.ID, now)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Contains(t, fileName, fmt.Sprintf("course_%d_report_", course.ID))

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Course Report")
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, []string{"IDN", "Username", "Full Name", "Attendance %", "Grade Average"}, rows[0])
	// Two registered students plus the trailing summary block
	assert.GreaterOrEqual(t, len(rows), 3)
}

func TestBuildDashboard_Integration(t *testing.T) {
	db := setupReportTestDB(t)
	ctx := context.Background()
	svc := NewReportService(db)

	school, _, alice, _ := seedReportCourse(t, db)

	invoice := model.Invoice{
		UserID:          alice.ID,
		SchoolID:        school.ID,
		Amount:          25000,
		Status:          model.InvoiceStatusPaid,
		Receipt:         fmt.Sprintf("rcpt_dash_%d", time.Now().UnixNano()),
		ProviderOrderID: fmt.Sprintf("order_dash_%d", time.Now().UnixNano()),
	}
	require.NoError(t, db.Create(&invoice).Error)
	t.Cleanup(func() { db.Unscoped().Delete(&invoice) })

	report, err := svc.BuildDashboard(ctx, school.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(2), report.TotalStudents)
	assert.Equal(t, int64(0), report.TotalInstructors)
	assert.Equal(t, int64(1), report.TotalCourses)
	assert.Equal(t, int64(2), report.TotalRegistrations)
	assert.Equal(t, int64(1), report.PaidInvoices)
	assert.Equal(t, int64(25000), report.RevenueCollected)
}
