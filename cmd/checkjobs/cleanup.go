//go:build ignore
// +build ignore

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	// Load .env
	godotenv.Load()

	// Build database URL
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbUser := os.Getenv("DB_USER_NAME")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")

	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPort == "" {
		dbPort = "5432"
	}

	dbURL := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		dbHost, dbPort, dbUser, dbPassword, dbName)

	db, err := gorm.Open(postgres.Open(dbURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	fmt.Println("========================================")
	fmt.Println("CLEANUP: Deleting test data")
	fmt.Println("========================================")

	// Delete in correct order due to foreign key constraints

	// 1. Delete cron job logs
	result := db.Exec("DELETE FROM cron_job_logs")
	fmt.Printf("Deleted %d cron job logs\n", result.RowsAffected)

	// 2. Delete import notifications
	result = db.Exec("DELETE FROM user_notifications WHERE category = 'user_import'")
	fmt.Printf("Deleted %d import notifications\n", result.RowsAffected)

	// 3. Delete expired password reset tokens
	result = db.Exec("DELETE FROM password_reset_tokens WHERE expires_at < NOW()")
	fmt.Printf("Deleted %d expired password reset tokens\n", result.RowsAffected)

	// 4. Delete expired token blacklist entries
	result = db.Exec("DELETE FROM jwt_token_blacklist WHERE expires_at < NOW()")
	fmt.Printf("Deleted %d expired blacklist entries\n", result.RowsAffected)

	// 5. Delete imported test users (seeded usernames start with bulktest)
	result = db.Exec("DELETE FROM users WHERE username LIKE 'bulktest%'")
	fmt.Printf("Deleted %d bulk-test users\n", result.RowsAffected)

	fmt.Println("\n✅ Cleanup complete!")
	fmt.Println("========================================")
}
