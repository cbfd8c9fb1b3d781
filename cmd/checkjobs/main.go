package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// CronJobLog mirrors the model for checking
type CronJobLog struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	JobName     string
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time
	Duration    int
	Message     string
	ErrorMsg    string
}

func (CronJobLog) TableName() string {
	return "cron_job_logs"
}

// UserNotification mirrors the model for checking
type UserNotification struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint
	Type      string
	Category  string
	Title     string
	Message   string
	Read      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserNotification) TableName() string {
	return "user_notifications"
}

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Build database URL from individual variables
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

	// Connect to database
	db, err := gorm.Open(postgres.Open(dbURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	fmt.Println("========================================")
	fmt.Println("CRON JOBS STATUS CHECK")
	fmt.Println("========================================")

	// Get recent job runs
	var runs []CronJobLog
	if err := db.Order("started_at DESC").Limit(20).Find(&runs).Error; err != nil {
		log.Fatalf("Failed to fetch job logs: %v", err)
	}

	if len(runs) == 0 {
		fmt.Println("\n❌ No cron job runs found in database")
	} else {
		fmt.Printf("\n📋 Found %d recent runs:\n\n", len(runs))

		for _, run := range runs {
			statusIcon := "⏳"
			switch run.Status {
			case "completed":
				statusIcon = "✅"
			case "failed":
				statusIcon = "❌"
			case "running":
				statusIcon = "🔄"
			}

			fmt.Printf("─────────────────────────────────────\n")
			fmt.Printf("%s Run ID: %d\n", statusIcon, run.ID)
			fmt.Printf("   Job: %s\n", run.JobName)
			fmt.Printf("   Status: %s\n", run.Status)
			fmt.Printf("   Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
			if run.CompletedAt != nil {
				fmt.Printf("   Completed: %s (%dms)\n", run.CompletedAt.Format("2006-01-02 15:04:05"), run.Duration)
			}
			if run.Message != "" {
				fmt.Printf("   Result: %s\n", truncate(run.Message, 70))
			}
			if run.ErrorMsg != "" {
				fmt.Printf("   Error: %s\n", truncate(run.ErrorMsg, 70))
			}
		}
	}

	// Check runs that are still marked running
	var active []CronJobLog
	db.Where("status = ?", "running").Find(&active)

	fmt.Println("\n========================================")
	fmt.Printf("ACTIVE RUNS: %d\n", len(active))
	fmt.Println("========================================")

	if len(active) > 0 {
		for _, run := range active {
			age := time.Since(run.StartedAt).Round(time.Second)
			marker := "🔄"
			if age > time.Hour {
				// Probably a crashed run that never got closed out
				marker = "⚠️"
			}
			fmt.Printf("%s %s - running for %s (started %s)\n",
				marker, run.JobName, age, run.StartedAt.Format("2006-01-02 15:04:05"))
		}
	} else {
		fmt.Println("No jobs currently running")
	}

	// Check recent import notifications
	fmt.Println("\n========================================")
	fmt.Println("RECENT IMPORT NOTIFICATIONS")
	fmt.Println("========================================")

	var notifications []UserNotification
	db.Where("category = ?", "user_import").Order("created_at DESC").Limit(10).Find(&notifications)

	if len(notifications) == 0 {
		fmt.Println("No import notifications found")
	} else {
		for _, n := range notifications {
			readIcon := "○"
			if n.Read {
				readIcon = "●"
			}
			fmt.Printf("%s [%s] User:%d - %s: %s\n",
				readIcon, n.Type, n.UserID, n.Title, truncate(n.Message, 50))
		}
	}

	fmt.Println("\n========================================")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
