package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/schoolhub-io/schoolhub/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	// Get job name from args, default to the most recently run job
	jobName := ""
	if len(os.Args) > 1 {
		jobName = os.Args[1]
	}

	// Connect to database
	db, err := connectDatabase()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if jobName == "" {
		var latest model.CronJobLog
		if err := db.Order("started_at DESC").First(&latest).Error; err != nil {
			log.Fatal("No cron job runs found; pass a job name explicitly")
		}
		jobName = latest.JobName
	}

	// Get recent runs for the job
	var runs []model.CronJobLog
	err = db.Where("job_name = ?", jobName).
		Order("started_at DESC").
		Limit(10).
		Find(&runs).Error
	if err != nil {
		log.Fatalf("Failed to fetch runs for %s: %v", jobName, err)
	}
	if len(runs) == 0 {
		log.Fatalf("No runs found for job %q", jobName)
	}

	fmt.Println("══════════════════════════════════════════════════════════════")
	fmt.Printf("  CRON JOB %q - RUN HISTORY\n", jobName)
	fmt.Println("══════════════════════════════════════════════════════════════")

	var completed, failed int
	var totalDuration int

	for i, run := range runs {
		statusIcon := "⏳"
		switch run.Status {
		case "completed":
			statusIcon = "✅"
			completed++
			totalDuration += run.Duration
		case "failed":
			statusIcon = "❌"
			failed++
		case "running":
			statusIcon = "🔄"
		}

		fmt.Printf("\n%s RUN #%d (log id %d):\n", statusIcon, i+1, run.ID)
		fmt.Printf("   Status:      %s\n", run.Status)
		fmt.Printf("   Started At:  %s\n", run.StartedAt.Format("2006-01-02 15:04:05.000"))
		if run.CompletedAt != nil {
			fmt.Printf("   Completed:   %s\n", run.CompletedAt.Format("2006-01-02 15:04:05.000"))
			fmt.Printf("   Duration:    %dms\n", run.Duration)
		} else {
			fmt.Printf("   Running for: %s\n", time.Since(run.StartedAt).Round(time.Second))
		}
		if run.Message != "" {
			fmt.Printf("   Result:      %s\n", truncate(run.Message, 60))
		}
		if run.ErrorMsg != "" {
			fmt.Printf("   Error:       %s\n", truncate(run.ErrorMsg, 60))
		}

		// Parse metadata
		if run.Metadata != "" && run.Metadata != "{}" {
			var meta map[string]interface{}
			if err := json.Unmarshal([]byte(run.Metadata), &meta); err == nil {
				fmt.Printf("   Metadata:\n")
				for k, v := range meta {
					fmt.Printf("     %s: %v\n", k, v)
				}
			}
		}
	}

	// Summary
	fmt.Println("\n══════════════════════════════════════════════════════════════")
	fmt.Printf("  RUNS: %d total, %d completed, %d failed\n", len(runs), completed, failed)
	if completed > 0 {
		fmt.Printf("  AVG DURATION: %dms\n", totalDuration/completed)
	}
	if failed > 0 {
		fmt.Println("  ❌ RECENT FAILURES PRESENT - check error messages above")
	} else if completed == len(runs) {
		fmt.Println("  ✅ ALL RECENT RUNS COMPLETED")
	}
	fmt.Println("══════════════════════════════════════════════════════════════")
}

func connectDatabase() (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_USER_NAME", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_NAME", "schoolhub"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_SSL_MODE", "disable"),
	)

	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
