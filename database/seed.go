package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/utils/auth"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// SeedAll runs all seed functions
func (s *Seeder) SeedAll() error {
	log.Println("🌱 Starting database seeding...")

	// Run seeds in order (respecting foreign key constraints)
	if err := s.SeedSchools(); err != nil {
		return fmt.Errorf("failed to seed schools: %w", err)
	}

	if err := s.SeedAdminUser(); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if err := s.SeedTerms(); err != nil {
		return fmt.Errorf("failed to seed terms: %w", err)
	}

	if err := s.SeedCourses(); err != nil {
		return fmt.Errorf("failed to seed courses: %w", err)
	}

	if err := s.SeedGradeWeights(); err != nil {
		return fmt.Errorf("failed to seed grade weights: %w", err)
	}

	if err := s.SeedSampleUsers(); err != nil {
		return fmt.Errorf("failed to seed sample users: %w", err)
	}

	if err := s.SeedRegistrations(); err != nil {
		return fmt.Errorf("failed to seed registrations: %w", err)
	}

	if err := s.SeedAppSettings(); err != nil {
		return fmt.Errorf("failed to seed app settings: %w", err)
	}

	log.Println("✅ Database seeding completed successfully!")
	return nil
}

// SeedSchools creates sample schools
func (s *Seeder) SeedSchools() error {
	// Check if schools already exist
	var count int64
	if err := s.db.Model(&model.School{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Schools already exist, skipping...")
		return nil
	}

	schools := []model.School{
		{
			Name:     "Riverside Academy",
			Code:     "RVA",
			Address:  "14 Riverside Drive, Pune, Maharashtra",
			Phone:    "+91-20-5550-1100",
			IsActive: true,
		},
		{
			Name:     "Hillcrest Institute",
			Code:     "HCI",
			Address:  "220 Hillcrest Road, Bengaluru, Karnataka",
			Phone:    "+91-80-5550-2200",
			IsActive: true,
		},
	}

	if err := s.db.Create(&schools).Error; err != nil {
		return err
	}

	log.Printf("✅ Created %d schools\n", len(schools))
	return nil
}

// SeedAdminUser creates the default admin user for the first school
func (s *Seeder) SeedAdminUser() error {
	// Check if admin already exists
	var count int64
	if err := s.db.Model(&model.User{}).Where("is_admin = ?", true).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Admin user already exists, skipping...")
		return nil
	}

	// Get admin credentials from environment variables
	adminUsername := os.Getenv("ADMIN_USERNAME")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminUsername == "" || adminPassword == "" {
		log.Println("⚠️  ADMIN_USERNAME and ADMIN_PASSWORD environment variables not set, skipping admin user creation")
		return nil
	}

	var school model.School
	if err := s.db.Order("id ASC").First(&school).Error; err != nil {
		return fmt.Errorf("no schools found, seed schools first: %w", err)
	}

	// Hash password
	passwordHash, err := auth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &model.User{
		SchoolID:     school.ID,
		IDN:          1,
		Username:     model.NormalizeUsername(adminUsername),
		FirstName:    "System",
		LastName:     "Administrator",
		PasswordHash: passwordHash,
		IsAdmin:      true,
		IsInstructor: false,
		IsStudent:    false,
		TokenVersion: 0,
	}

	if err := s.db.Create(admin).Error; err != nil {
		return err
	}

	log.Printf("✅ Created admin user: %s\n", admin.Username)
	return nil
}

// SeedTerms creates past, current and future terms for every school
func (s *Seeder) SeedTerms() error {
	// Check if terms already exist
	var count int64
	if err := s.db.Model(&model.Term{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Terms already exist, skipping...")
		return nil
	}

	var schools []model.School
	if err := s.db.Find(&schools).Error; err != nil {
		return err
	}

	if len(schools) == 0 {
		return fmt.Errorf("no schools found, seed schools first")
	}

	now := time.Now().UTC()
	year := now.Year()

	var terms []model.Term
	for _, school := range schools {
		terms = append(terms,
			model.Term{
				SchoolID:  school.ID,
				Name:      fmt.Sprintf("Fall %d", year-1),
				StartDate: time.Date(year-1, time.September, 1, 0, 0, 0, 0, time.UTC),
				EndDate:   time.Date(year-1, time.December, 20, 0, 0, 0, 0, time.UTC),
			},
			model.Term{
				SchoolID:  school.ID,
				Name:      fmt.Sprintf("Spring %d", year),
				StartDate: time.Date(year, time.January, 10, 0, 0, 0, 0, time.UTC),
				EndDate:   time.Date(year, time.May, 30, 0, 0, 0, 0, time.UTC),
			},
			model.Term{
				SchoolID:  school.ID,
				Name:      fmt.Sprintf("Fall %d", year),
				StartDate: time.Date(year, time.September, 1, 0, 0, 0, 0, time.UTC),
				EndDate:   time.Date(year, time.December, 20, 0, 0, 0, 0, time.UTC),
			},
		)
	}

	if err := s.db.Create(&terms).Error; err != nil {
		return err
	}

	log.Printf("✅ Created %d terms\n", len(terms))
	return nil
}

// SeedCourses creates sample courses
func (s *Seeder) SeedCourses() error {
	// Check if courses already exist
	var count int64
	if err := s.db.Model(&model.Course{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Courses already exist, skipping...")
		return nil
	}

	var schools []model.School
	if err := s.db.Order("id ASC").Find(&schools).Error; err != nil {
		return err
	}

	if len(schools) == 0 {
		return fmt.Errorf("no schools found, seed schools first")
	}

	courses := []model.Course{}
	for _, school := range schools {
		// Use the most recent term of the school for seeded courses
		var term model.Term
		if err := s.db.Where("school_id = ?", school.ID).Order("start_date DESC").First(&term).Error; err != nil {
			return fmt.Errorf("no terms found for school %d, seed terms first", school.ID)
		}

		courses = append(courses,
			model.Course{
				SchoolID:    school.ID,
				TermID:      term.ID,
				Name:        "Mathematics I",
				Code:        fmt.Sprintf("%s-MATH1", school.Code),
				Description: "Algebra, functions and introductory calculus",
				Days:        datatypes.JSON([]byte(`["mon","wed","fri"]`)),
				Price:       450000,
				Capacity:    30,
			},
			model.Course{
				SchoolID:    school.ID,
				TermID:      term.ID,
				Name:        "Physics I",
				Code:        fmt.Sprintf("%s-PHYS1", school.Code),
				Description: "Mechanics, waves and thermodynamics",
				Days:        datatypes.JSON([]byte(`["tue","thu"]`)),
				Price:       500000,
				Capacity:    25,
			},
			model.Course{
				SchoolID:    school.ID,
				TermID:      term.ID,
				Name:        "English Literature",
				Code:        fmt.Sprintf("%s-ENGL1", school.Code),
				Description: "Reading and composition",
				Days:        datatypes.JSON([]byte(`["mon","thu"]`)),
				Price:       350000,
				Capacity:    35,
			},
		)
	}

	if err := s.db.Create(&courses).Error; err != nil {
		return err
	}

	log.Printf("✅ Created %d courses\n", len(courses))
	return nil
}

// SeedGradeWeights creates the assignment weight tables for seeded courses
func (s *Seeder) SeedGradeWeights() error {
	// Check if weights already exist
	var count int64
	if err := s.db.Model(&model.GradeWeight{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Grade weights already exist, skipping...")
		return nil
	}

	var courses []model.Course
	if err := s.db.Find(&courses).Error; err != nil {
		return err
	}

	if len(courses) == 0 {
		return fmt.Errorf("no courses found, seed courses first")
	}

	var weights []model.GradeWeight
	for _, course := range courses {
		weights = append(weights,
			// Checkpoint assignments: exams and projects
			model.GradeWeight{CourseID: course.ID, Assignment: "midterm", Checkpoint: true},
			model.GradeWeight{CourseID: course.ID, Assignment: "final", Checkpoint: true},
			model.GradeWeight{CourseID: course.ID, Assignment: "project", Checkpoint: true},
			// Daily assignments: homework and quizzes
			model.GradeWeight{CourseID: course.ID, Assignment: "homework-1", Checkpoint: false},
			model.GradeWeight{CourseID: course.ID, Assignment: "homework-2", Checkpoint: false},
			model.GradeWeight{CourseID: course.ID, Assignment: "quiz-1", Checkpoint: false},
			model.GradeWeight{CourseID: course.ID, Assignment: "quiz-2", Checkpoint: false},
		)
	}

	if err := s.db.Create(&weights).Error; err != nil {
		return err
	}

	log.Printf("✅ Created %d grade weights\n", len(weights))
	return nil
}

// SeedSampleUsers creates sample instructors and students for the first school
func (s *Seeder) SeedSampleUsers() error {
	// Check if non-admin users already exist
	var count int64
	if err := s.db.Model(&model.User{}).Where("is_admin = ?", false).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Sample users already exist, skipping...")
		return nil
	}

	var school model.School
	if err := s.db.Order("id ASC").First(&school).Error; err != nil {
		return fmt.Errorf("no schools found, seed schools first: %w", err)
	}

	// Continue the school's IDN sequence after any seeded admin
	var maxIDN int
	if err := s.db.Model(&model.User{}).Where("school_id = ?", school.ID).
		Select("COALESCE(MAX(idn), 0)").Scan(&maxIDN).Error; err != nil {
		return err
	}

	passwordHash, err := auth.HashPassword("changeme123")
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	samples := []struct {
		first      string
		last       string
		email      string
		instructor bool
	}{
		{"Meera", "Krishnan", "meera.krishnan@example.com", true},
		{"Arjun", "Sharma", "arjun.sharma@example.com", true},
		{"Priya", "Patel", "priya.patel@example.com", false},
		{"Rahul", "Verma", "rahul.verma@example.com", false},
		{"Ananya", "Iyer", "ananya.iyer@example.com", false},
		{"Kabir", "Singh", "kabir.singh@example.com", false},
	}

	var users []model.User
	for i, sample := range samples {
		users = append(users, model.User{
			SchoolID:     school.ID,
			IDN:          maxIDN + i + 1,
			Username:     model.NormalizeUsername(sample.first + "." + sample.last),
			FirstName:    sample.first,
			LastName:     sample.last,
			Email:        sample.email,
			PasswordHash: passwordHash,
			IsInstructor: sample.instructor,
			IsStudent:    !sample.instructor,
			Credits:      0,
		})
	}

	if err := s.db.Create(&users).Error; err != nil {
		return err
	}

	log.Printf("✅ Created %d sample users\n", len(users))
	return nil
}

// SeedRegistrations enrolls seeded students into the first school's courses
func (s *Seeder) SeedRegistrations() error {
	// Check if registrations already exist
	var count int64
	if err := s.db.Model(&model.Registration{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Registrations already exist, skipping...")
		return nil
	}

	var school model.School
	if err := s.db.Order("id ASC").First(&school).Error; err != nil {
		return err
	}

	var students []model.User
	if err := s.db.Where("school_id = ? AND is_student = ?", school.ID, true).Find(&students).Error; err != nil {
		return err
	}

	var courses []model.Course
	if err := s.db.Where("school_id = ?", school.ID).Find(&courses).Error; err != nil {
		return err
	}

	if len(students) == 0 || len(courses) == 0 {
		log.Println("⏭️  No students or courses to register, skipping...")
		return nil
	}

	var registrations []model.Registration
	for i, student := range students {
		// Enroll each student in two of the courses, staggered
		for j := 0; j < 2 && j < len(courses); j++ {
			course := courses[(i+j)%len(courses)]
			registrations = append(registrations, model.Registration{
				UserID:   student.ID,
				CourseID: course.ID,
			})
		}
	}

	if err := s.db.Create(&registrations).Error; err != nil {
		return err
	}

	log.Printf("✅ Created %d registrations\n", len(registrations))
	return nil
}

// SeedAppSettings creates default application settings
func (s *Seeder) SeedAppSettings() error {
	// Check if settings already exist
	var count int64
	if err := s.db.Model(&model.AppSetting{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  App settings already exist, skipping...")
		return nil
	}

	now := time.Now()
	settings := []model.AppSetting{
		// System Information
		{
			Key:         "system.name",
			Value:       "SchoolHub",
			Type:        "string",
			Description: "Application name",
			IsPublic:    true,
			Category:    "system",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			Key:         "system.version",
			Value:       "1.0.0",
			Type:        "string",
			Description: "Current application version",
			IsPublic:    true,
			Category:    "system",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			Key:         "system.maintenance_mode",
			Value:       "false",
			Type:        "bool",
			Description: "Enable maintenance mode to restrict access",
			IsPublic:    true,
			Category:    "system",
			CreatedAt:   now,
			UpdatedAt:   now,
		},

		// Rate Limiting
		{
			Key:         "rate_limit.api.requests_per_minute",
			Value:       "60",
			Type:        "int",
			Description: "Maximum API requests per minute per user",
			IsPublic:    false,
			Category:    "rate_limit",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			Key:         "rate_limit.import.max_rows",
			Value:       "1000",
			Type:        "int",
			Description: "Maximum rows accepted per bulk user import",
			IsPublic:    false,
			Category:    "rate_limit",
			CreatedAt:   now,
			UpdatedAt:   now,
		},

		// Feature Flags
		{
			Key:         "feature.registration_enabled",
			Value:       "true",
			Type:        "bool",
			Description: "Allow new user registrations",
			IsPublic:    true,
			Category:    "feature",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			Key:         "feature.payments_enabled",
			Value:       "true",
			Type:        "bool",
			Description: "Enable credit top-up payments",
			IsPublic:    true,
			Category:    "feature",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			Key:         "feature.bulk_import_enabled",
			Value:       "true",
			Type:        "bool",
			Description: "Enable bulk user imports",
			IsPublic:    false,
			Category:    "feature",
			CreatedAt:   now,
			UpdatedAt:   now,
		},

		// Billing Settings
		{
			Key:         "billing.invoice_expiry_minutes",
			Value:       "1440",
			Type:        "int",
			Description: "Minutes before an unpaid invoice expires",
			IsPublic:    false,
			Category:    "billing",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			Key:         "billing.currency",
			Value:       "INR",
			Type:        "string",
			Description: "Default billing currency",
			IsPublic:    true,
			Category:    "billing",
			CreatedAt:   now,
			UpdatedAt:   now,
		},

		// Grading
		{
			Key:         "grade.checkpoint_weight",
			Value:       "0.60",
			Type:        "float",
			Description: "Default weight of checkpoint assignments in course averages",
			IsPublic:    true,
			Category:    "grades",
			CreatedAt:   now,
			UpdatedAt:   now,
		},

		// Security Settings
		{
			Key:         "security.password_min_length",
			Value:       "8",
			Type:        "int",
			Description: "Minimum password length",
			IsPublic:    true,
			Category:    "security",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			Key:         "security.jwt_expiry_hours",
			Value:       "24",
			Type:        "int",
			Description: "JWT token expiry time in hours",
			IsPublic:    false,
			Category:    "security",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			Key:         "security.max_login_attempts",
			Value:       "5",
			Type:        "int",
			Description: "Maximum failed login attempts before lockout",
			IsPublic:    false,
			Category:    "security",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			Key:         "security.lockout_duration_minutes",
			Value:       "15",
			Type:        "int",
			Description: "Account lockout duration after max failed attempts",
			IsPublic:    false,
			Category:    "security",
			CreatedAt:   now,
			UpdatedAt:   now,
		},

		// Reports
		{
			Key:         "reports.retention_days",
			Value:       "90",
			Type:        "int",
			Description: "Days to retain archived report files",
			IsPublic:    false,
			Category:    "reports",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}

	if err := s.db.Create(&settings).Error; err != nil {
		return err
	}

	log.Printf("✅ Created %d app settings\n", len(settings))
	return nil
}

// RunSeeds is a convenience function to run all seeds
func RunSeeds(db *gorm.DB) error {
	seeder := NewSeeder(db)
	return seeder.SeedAll()
}
