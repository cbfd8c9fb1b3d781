package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/services"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Creates demo login accounts (admin, instructor, student) inside an existing
// school without rerunning the full seed.
//
// Usage: go run scripts/create_users.go
// Env:   SCHOOL_CODE (default RVA), ADMIN_USERNAME, ADMIN_PASSWORD

// UserCredentials holds user info for display
type UserCredentials struct {
	Username string
	Password string
	Name     string
	Role     string
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Connect to database
	db, err := connectDB()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Create users
	users, err := createUsers(db)
	if err != nil {
		log.Fatalf("Failed to create users: %v", err)
	}

	// Print credentials
	printCredentials(users)
}

func connectDB() (*gorm.DB, error) {
	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER_NAME", "postgres")
	dbPassword := getEnv("DB_PASSWORD", "postgres")
	dbName := getEnv("DB_NAME", "schoolhub")
	dbSSLMode := getEnv("DB_SSL_MODE", "disable")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		dbHost, dbPort, dbUser, dbPassword, dbName, dbSSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func createUsers(db *gorm.DB) ([]UserCredentials, error) {
	ctx := context.Background()

	schoolCode := getEnv("SCHOOL_CODE", "RVA")
	var school model.School
	if err := db.Where("code = ?", schoolCode).First(&school).Error; err != nil {
		return nil, fmt.Errorf("school %q not found, run cmd/seed first: %w", schoolCode, err)
	}
	log.Printf("Creating demo accounts in %s (%s)\n", school.Name, school.Code)

	// Get admin credentials from environment
	adminUsername := os.Getenv("ADMIN_USERNAME")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminUsername == "" {
		adminUsername = "demo_admin"
	}
	if adminPassword == "" {
		adminPassword = "ChangeMe123!"
	}

	// Define users to create
	usersToCreate := []struct {
		Username     string
		Password     string
		FirstName    string
		LastName     string
		Role         string
		IsAdmin      bool
		IsInstructor bool
		Credits      int64
	}{
		{
			Username:  adminUsername,
			Password:  adminPassword,
			FirstName: "System",
			LastName:  "Administrator",
			Role:      "admin",
			IsAdmin:   true,
		},
		{
			Username:     "demo_instructor",
			Password:     "Instructor123!",
			FirstName:    "Demo",
			LastName:     "Instructor",
			Role:         "instructor",
			IsInstructor: true,
		},
		{
			Username:  "demo_student",
			Password:  "Student123!",
			FirstName: "Demo",
			LastName:  "Student",
			Role:      "student",
			Credits:   50000,
		},
	}

	userService := services.NewUserService(db)

	var credentials []UserCredentials
	for _, u := range usersToCreate {
		// Check if user already exists
		var existingUser model.User
		result := db.Where("username = ?", model.NormalizeUsername(u.Username)).First(&existingUser)

		if result.Error == nil {
			// User exists, add to credentials list
			log.Printf("User %s already exists, skipping creation\n", u.Username)
			credentials = append(credentials, UserCredentials{
				Username: u.Username,
				Password: u.Password,
				Name:     fmt.Sprintf("%s %s", u.FirstName, u.LastName),
				Role:     u.Role,
			})
			continue
		}

		// Create user with the school's next idn
		user, err := userService.CreateUser(ctx, services.CreateUserInput{
			SchoolID:     school.ID,
			Username:     u.Username,
			Password:     u.Password,
			FirstName:    u.FirstName,
			LastName:     u.LastName,
			IsAdmin:      u.IsAdmin,
			IsInstructor: u.IsInstructor,
			Credits:      u.Credits,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create user %s: %w", u.Username, err)
		}

		log.Printf("Created user: %s (%s, idn %d)\n", user.Username, u.Role, user.IDN)
		credentials = append(credentials, UserCredentials{
			Username: user.Username,
			Password: u.Password,
			Name:     fmt.Sprintf("%s %s", u.FirstName, u.LastName),
			Role:     u.Role,
		})
	}

	return credentials, nil
}

func printCredentials(users []UserCredentials) {
	fmt.Println("\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                    DEMO ACCOUNT CREDENTIALS                  ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════╣")
	for _, u := range users {
		fmt.Printf("║  %-12s %-20s password: %-15s ║\n", u.Role, u.Username, u.Password)
	}
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println("\n⚠️  Change these passwords before exposing the API anywhere public.")
}
