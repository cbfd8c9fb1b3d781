package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/services"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// E2E Test: Bulk Import -> Registration -> Attendance -> Grades -> Report
//
// This test verifies:
// 1. Bulk importer creates users in order with sequential idns and skips bad rows
// 2. Imported students can be registered into a course
// 3. Attendance toggling marks and unmarks class days
// 4. Weighted grade averages combine checkpoint and daily scores
// 5. Course report aggregates attendance percentages and grades per student

func main() {
	log.Println("══════════════════════════════════════════════════════════════════")
	log.Println("  END-TO-END TEST: Bulk Import → Registration → Grades → Report")
	log.Println("══════════════════════════════════════════════════════════════════")

	ctx := context.Background()

	// Step 1: Initialize
	log.Println("\n[STEP 1] Initializing...")
	db, err := initialize()
	if err != nil {
		log.Fatalf("Initialization failed: %v", err)
	}

	// Step 2: Set up school, term and course scaffolding
	log.Println("\n[STEP 2] Setting up test school, term and course...")
	course, admin, err := setupTestCourse(db)
	if err != nil {
		log.Fatalf("Failed to setup test course: %v", err)
	}

	log.Printf("  School ID: %d, Admin: %s (ID: %d)", course.SchoolID, admin.Username, admin.ID)
	log.Printf("  Course: %s [%s] (ID: %d), scheduled days: mon/wed/fri", course.Name, course.Code, course.ID)

	// Step 3: Bulk import students
	log.Println("\n[STEP 3] Importing students...")
	timestamp := time.Now().Unix()
	candidates := buildCandidates(timestamp)

	importer := services.NewImporterService(db)
	importer.OnProgress = func(processed, total, created, skipped int) {
		log.Printf("  [Row %2d/%d] created=%d skipped=%d", processed, total, created, skipped)
	}

	result, err := importer.ImportUsers(ctx, course.SchoolID, candidates)
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}

	log.Printf("  ✓ Import finished: %d created, %d skipped", len(result.Created), len(result.Skipped))
	for _, skip := range result.Skipped {
		log.Printf("    skipped row %d (%s): %s", skip.Index, skip.Username, skip.Reason)
	}

	if len(result.Created) == 0 {
		log.Fatal("No users were created, cannot continue")
	}

	// Step 4: Register imported students into the course
	log.Println("\n[STEP 4] Registering students...")
	registered := 0
	for _, student := range result.Created {
		reg := model.Registration{UserID: student.ID, CourseID: course.ID}
		if err := db.Create(&reg).Error; err != nil {
			log.Printf("  ⚠️  Failed to register %s: %v", student.Username, err)
			continue
		}
		registered++
	}
	log.Printf("  ✓ Registered %d of %d students", registered, len(result.Created))

	// Step 5: Toggle attendance for last week's class days
	log.Println("\n[STEP 5] Marking attendance...")
	gradebook := services.NewGradebookService(db)

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(now.Weekday()) + 6) % 7
	monday := today.AddDate(0, 0, -offset-7)
	wednesday := monday.AddDate(0, 0, 2)
	friday := monday.AddDate(0, 0, 4)

	lead := result.Created[0]
	for _, day := range []time.Time{monday, wednesday, friday} {
		marked, err := gradebook.ToggleAttendance(ctx, lead.ID, day, &admin.ID)
		if err != nil {
			log.Fatalf("Failed to mark attendance: %v", err)
		}
		log.Printf("  %s %s: marked=%v", lead.Username, day.Format("2006-01-02"), marked)
	}

	// Toggling the same day again should unmark it
	marked, err := gradebook.ToggleAttendance(ctx, lead.ID, friday, &admin.ID)
	if err != nil {
		log.Fatalf("Failed to unmark attendance: %v", err)
	}
	log.Printf("  %s %s re-toggled: marked=%v (expected false)", lead.Username, friday.Format("2006-01-02"), marked)

	for _, student := range result.Created[1:] {
		if _, err := gradebook.ToggleAttendance(ctx, student.ID, monday, &admin.ID); err != nil {
			log.Printf("  ⚠️  Failed to mark %s: %v", student.Username, err)
		}
	}

	pct, err := gradebook.CourseAttendancePercent(ctx, lead.ID, course.ID, now)
	if err != nil {
		log.Fatalf("Failed to compute attendance percent: %v", err)
	}
	log.Printf("  ✓ %s attendance: %d%%", lead.Username, pct)

	// Step 6: Record grades and compute weighted averages
	log.Println("\n[STEP 6] Recording grades...")
	for i, student := range result.Created {
		scores := map[string]float64{
			"midterm":    55 + float64(i%5)*8,
			"homework-1": 70 + float64(i%3)*10,
			"homework-2": 65 + float64(i%4)*5,
		}
		for assignment, score := range scores {
			s := score
			record := model.GradeRecord{
				UserID:     student.ID,
				Assignment: assignment,
				Score:      &s,
				GradedBy:   &admin.ID,
			}
			if err := db.Create(&record).Error; err != nil {
				log.Fatalf("Failed to record grade: %v", err)
			}
		}
	}
	log.Printf("  ✓ Recorded 3 grades for each of %d students", len(result.Created))

	avg, err := gradebook.CourseGradeAverage(ctx, lead.ID, course.ID, services.WeightPolicy{})
	if err != nil {
		log.Fatalf("Failed to compute grade average: %v", err)
	}
	log.Printf("  ✓ %s weighted average: %.2f (midterm 60%% / daily 40%%)", lead.Username, avg)

	// Step 7: Build the course report
	log.Println("\n[STEP 7] Building course report...")
	reportService := services.NewReportService(db)

	report, err := reportService.BuildCourseReport(ctx, course.ID, now)
	if err != nil {
		log.Fatalf("Failed to build report: %v", err)
	}

	log.Printf("  ✓ Report for %s [%s], term %s", report.CourseName, report.CourseCode, report.TermName)
	log.Printf("  Scheduled days so far: %d, students: %d", report.ScheduledDays, len(report.Rows))
	for i, row := range report.Rows {
		if i >= 5 {
			log.Printf("  ... and %d more rows", len(report.Rows)-5)
			break
		}
		log.Printf("  #%-4d %-24s attendance=%3d%% grade=%.1f", row.IDN, row.FullName, row.AttendancePercent, row.GradeAverage)
	}

	xlsxData, xlsxName, xlsxErr := reportService.ExportCourseReportXLSX(ctx, course.ID, now)
	if xlsxErr != nil {
		log.Printf("  ⚠️  XLSX export failed: %v", xlsxErr)
	} else {
		log.Printf("  ✓ XLSX export: %s (%d bytes)", xlsxName, len(xlsxData))
	}

	// Summary
	log.Println("\n══════════════════════════════════════════════════════════════════")
	log.Println("  TEST SUMMARY")
	log.Println("══════════════════════════════════════════════════════════════════")
	log.Printf("  Students imported: %d (skipped %d)", len(result.Created), len(result.Skipped))
	log.Printf("  Students registered: %d", registered)
	log.Printf("  Lead student attendance: %d%%", pct)
	log.Printf("  Lead student grade average: %.2f", avg)
	log.Printf("  Report rows: %d", len(report.Rows))

	if len(report.Rows) == registered && xlsxErr == nil {
		log.Println("\n  ✅ END-TO-END TEST PASSED")
	} else if len(report.Rows) == registered {
		log.Println("\n  ⚠️  PARTIAL SUCCESS - Report built but XLSX export failed")
	} else {
		log.Println("\n  ❌ TEST FAILED")
	}
	log.Println("══════════════════════════════════════════════════════════════════")

	// Cleanup option
	if os.Getenv("CLEANUP") == "true" {
		log.Println("\n[CLEANUP] Removing test data...")
		userIDs := make([]uint, 0, len(result.Created))
		for _, u := range result.Created {
			userIDs = append(userIDs, u.ID)
		}
		cleanupTestData(db, course, userIDs)
		log.Println("  ✓ Cleanup complete")
	}
}

func initialize() (*gorm.DB, error) {
	// Check required env vars
	requiredVars := []string{"DB_HOST", "DB_USER_NAME", "DB_PASSWORD", "DB_NAME"}
	for _, v := range requiredVars {
		if os.Getenv(v) == "" {
			return nil, fmt.Errorf("missing required env var: %s", v)
		}
	}

	// Connect to database
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER_NAME"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_SSL_MODE", "disable"),
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	log.Println("  ✓ Database connected")

	return db, nil
}

// setupTestCourse builds a fresh term and course under a reusable test
// school. The school and admin survive cleanup so reruns keep the same idn
// sequence behavior as a real tenant.
func setupTestCourse(db *gorm.DB) (*model.Course, *model.User, error) {
	var school model.School
	err := db.Where("code = ?", "E2E").First(&school).Error
	if err == gorm.ErrRecordNotFound {
		school = model.School{Name: "E2E Test School", Code: "E2E", IsActive: true}
		if err := db.Create(&school).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to create school: %w", err)
		}
	} else if err != nil {
		return nil, nil, err
	}

	var admin model.User
	err = db.Where("username = ?", "e2e_admin").First(&admin).Error
	if err == gorm.ErrRecordNotFound {
		var maxIDN int
		row := db.Model(&model.User{}).
			Where("school_id = ?", school.ID).
			Select("COALESCE(MAX(idn), 0)").
			Row()
		if err := row.Scan(&maxIDN); err != nil {
			return nil, nil, fmt.Errorf("failed to read idn sequence: %w", err)
		}

		admin = model.User{
			SchoolID:     school.ID,
			IDN:          maxIDN + 1,
			Username:     "e2e_admin",
			FirstName:    "E2E",
			LastName:     "Admin",
			IsAdmin:      true,
			PasswordHash: "e2e_not_a_login_account",
		}
		if err := db.Create(&admin).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to create admin: %w", err)
		}
	} else if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	term := model.Term{
		SchoolID:  school.ID,
		Name:      fmt.Sprintf("E2E Term %d", now.Unix()),
		StartDate: now.AddDate(0, 0, -28),
		EndDate:   now.AddDate(0, 0, 60),
	}
	if err := db.Create(&term).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to create term: %w", err)
	}

	course := model.Course{
		SchoolID:    school.ID,
		TermID:      term.ID,
		Name:        "E2E Test Course",
		Code:        fmt.Sprintf("E2E-%d", now.Unix()),
		Description: "Course for end-to-end testing",
		Days:        datatypes.JSON([]byte(`["mon","wed","fri"]`)),
	}
	if err := db.Create(&course).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to create course: %w", err)
	}

	weights := []model.GradeWeight{
		{CourseID: course.ID, Assignment: "midterm", Checkpoint: true},
		{CourseID: course.ID, Assignment: "homework-1"},
		{CourseID: course.ID, Assignment: "homework-2"},
	}
	if err := db.Create(&weights).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to create grade weights: %w", err)
	}

	return &course, &admin, nil
}

// buildCandidates returns ten valid rows plus two the importer must skip:
// a duplicate of the first username and a row missing its last name.
func buildCandidates(timestamp int64) []services.RawUserInput {
	prefix := fmt.Sprintf("e2e%d", timestamp)

	candidates := make([]services.RawUserInput, 0, 12)
	for i := 1; i <= 10; i++ {
		candidates = append(candidates, services.RawUserInput{
			Username:  fmt.Sprintf("%s_%02d", prefix, i),
			FirstName: "Student",
			LastName:  fmt.Sprintf("Number%02d", i),
			Email:     fmt.Sprintf("%s_%02d@example.com", prefix, i),
		})
	}
	candidates = append(candidates, services.RawUserInput{
		Username:  fmt.Sprintf("%s_01", prefix),
		FirstName: "Duplicate",
		LastName:  "Username",
	})
	candidates = append(candidates, services.RawUserInput{
		Username:  fmt.Sprintf("%s_13", prefix),
		FirstName: "Missing",
	})
	return candidates
}

func cleanupTestData(db *gorm.DB, course *model.Course, userIDs []uint) {
	if len(userIDs) > 0 {
		db.Where("user_id IN ?", userIDs).Delete(&model.AttendanceRecord{})
		db.Where("user_id IN ?", userIDs).Delete(&model.GradeRecord{})
		db.Where("user_id IN ?", userIDs).Delete(&model.Registration{})
		db.Where("user_id IN ?", userIDs).Delete(&model.UserNotification{})
		db.Unscoped().Where("id IN ?", userIDs).Delete(&model.User{})
	}

	db.Where("course_id = ?", course.ID).Delete(&model.GradeWeight{})
	db.Unscoped().Delete(&model.Course{}, course.ID)
	db.Unscoped().Delete(&model.Term{}, course.TermID)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
