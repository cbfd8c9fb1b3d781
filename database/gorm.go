package database

import (
	"fmt"
	"log"
	"time"

	"github.com/schoolhub-io/schoolhub/config"
	"github.com/schoolhub-io/schoolhub/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GORMStore struct {
	db *gorm.DB
}

// StartGORM initializes a GORM connection to PostgreSQL
func StartGORM() (*GORMStore, error) {
	getEnv, err := config.Get()
	if err != nil {
		return nil, err
	}

	// Build DSN (Data Source Name)
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		getEnv.DB_HOST,
		getEnv.DB_USER_NAME,
		getEnv.DB_PASSWORD,
		getEnv.DB_NAME,
		getEnv.DB_PORT,
		getEnv.DB_SSL_MODE,
	)

	// Configure GORM logger
	gormLogger := logger.Default.LogMode(logger.Info)
	if getEnv.GO_ENV == "production" {
		gormLogger = logger.Default.LogMode(logger.Error)
	}

	// Open GORM connection
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: false,
		PrepareStmt:            true, // Prepare statements for better performance
	})
	if err != nil {
		log.Println("Unable to connect to PostgreSQL with GORM:", err)
		return nil, err
	}

	// Get underlying *sql.DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("Successfully connected to PostgreSQL Database with GORM.")

	return &GORMStore{db: db}, nil
}

// Init runs the AutoMigrate to create/update tables
func (s *GORMStore) Init() error {
	log.Println("Running GORM AutoMigrate for all models...")

	err := s.db.AutoMigrate(
		// Tenant & user models
		&model.School{},
		&model.User{},

		// Academic calendar & catalog models
		&model.Term{},
		&model.Course{},
		&model.Registration{},

		// Tracking models
		&model.AttendanceRecord{},
		&model.GradeRecord{},
		&model.GradeWeight{},

		// Billing model
		&model.Invoice{},

		// Application settings
		&model.AppSetting{},

		// Token blacklist & password resets
		&model.JWTTokenBlacklist{},
		&model.PasswordResetToken{},

		// Audit & logging models
		&model.CronJobLog{},
		&model.AdminAuditLog{},

		// User notification models
		&model.UserNotification{},
	)

	if err != nil {
		log.Println("Error running AutoMigrate:", err)
		return err
	}

	log.Println("GORM AutoMigrate completed successfully!")
	return nil
}

// Close closes the database connection
func (s *GORMStore) Close() error {
	log.Println("Closing GORM PostgreSQL connection...")
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the GORM DB instance for use in repositories/handlers
func (s *GORMStore) GetDB() interface{} {
	return s.db
}

// HealthCheck verifies the database connection is alive
func (s *GORMStore) HealthCheck() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Reset drops all tables managed by AutoMigrate
func (s *GORMStore) Reset() error {
	log.Println("Dropping all GORM managed tables...")
	return s.db.Migrator().DropTable(
		&model.UserNotification{},
		&model.AdminAuditLog{},
		&model.CronJobLog{},
		&model.PasswordResetToken{},
		&model.JWTTokenBlacklist{},
		&model.AppSetting{},
		&model.Invoice{},
		&model.GradeWeight{},
		&model.GradeRecord{},
		&model.AttendanceRecord{},
		&model.Registration{},
		&model.Course{},
		&model.Term{},
		&model.User{},
		&model.School{},
	)
}

// GetSchools retrieves all schools from the database
func (s *GORMStore) GetSchools() ([]model.School, error) {
	var schools []model.School
	result := s.db.Find(&schools)
	return schools, result.Error
}

// AddSchool adds a new school to the database
func (s *GORMStore) AddSchool(school model.School) error {
	result := s.db.Create(&school)
	return result.Error
}

// UpdateSchool updates an existing school in the database
func (s *GORMStore) UpdateSchool(school model.School) error {
	result := s.db.Model(&model.School{}).Where("id = ?", school.ID).Updates(school)
	return result.Error
}

// DeleteSchool deletes a school by ID from the database
func (s *GORMStore) DeleteSchool(id int64) error {
	result := s.db.Delete(&model.School{}, id)
	return result.Error
}
