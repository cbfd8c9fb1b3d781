//go:build ignore
// +build ignore

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models for database queries
type User struct {
	ID        uint `gorm:"primaryKey"`
	IDN       int
	Username  string
	FirstName string
	LastName  string
	Email     string
	SchoolID  uint
	CreatedAt time.Time
}

func (User) TableName() string { return "users" }

type UserNotification struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint
	Type      string
	Category  string
	Title     string
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserNotification) TableName() string { return "user_notifications" }

// API response types
type ImportStartResponse struct {
	Success bool `json:"success"`
	Data    struct {
		JobID     string `json:"job_id"`
		Status    string `json:"status"`
		TotalRows int    `json:"total_rows"`
		EventsURL string `json:"events_url"`
	} `json:"data"`
}

type ActiveJobResponse struct {
	Success bool `json:"success"`
	Data    struct {
		HasActiveJob bool `json:"has_active_job"`
		Job          *struct {
			JobID         string `json:"job_id"`
			Status        string `json:"status"`
			Progress      int    `json:"progress"`
			TotalRows     int    `json:"total_rows"`
			ProcessedRows int    `json:"processed_rows"`
			CreatedCount  int    `json:"created_count"`
			SkippedCount  int    `json:"skipped_count"`
			Error         string `json:"error"`
		} `json:"job"`
	} `json:"data"`
}

var db *gorm.DB

const importRows = 50

func main() {
	godotenv.Load()

	// Connect to database
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "5432"
	}
	dbURL := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		dbHost, dbPort, os.Getenv("DB_USER_NAME"), os.Getenv("DB_PASSWORD"), os.Getenv("DB_NAME"))

	var err error
	db, err = gorm.Open(postgres.Open(dbURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	fmt.Println("╔════════════════════════════════════════════════════════════╗")
	fmt.Println("║          BULK IMPORT MONITORING TEST                       ║")
	fmt.Println("╚════════════════════════════════════════════════════════════╝")

	// Step 1: Clean up existing test data
	fmt.Println("\n📋 Step 1: Cleaning up existing test data...")
	cleanup()

	// Step 2: Trigger bulk import via API
	fmt.Println("\n📋 Step 2: Triggering bulk import via API...")
	jobID := triggerImport()
	if jobID == "" {
		log.Fatal("Failed to start bulk import")
	}
	fmt.Printf("   ✅ Job created with ID: %s\n", jobID)

	// Step 3: Monitor the job until completion (max 2 minutes)
	fmt.Println("\n📋 Step 3: Monitoring job progress (max 2 minutes)...")
	monitorJob(2 * time.Minute)

	// Step 4: Final status check
	fmt.Println("\n📋 Step 4: Final database state...")
	printFinalState()
}

func cleanup() {
	db.Exec("DELETE FROM users WHERE username LIKE 'bulktest%'")
	db.Exec("DELETE FROM user_notifications WHERE category = 'user_import'")
	fmt.Println("   ✅ Cleanup complete")
}

func triggerImport() string {
	authToken := os.Getenv("TEST_AUTH_TOKEN")
	if authToken == "" {
		log.Fatal("TEST_AUTH_TOKEN not set; log in as an admin and export the access token")
	}

	users := make([]map[string]interface{}, 0, importRows)
	for i := 1; i <= importRows; i++ {
		users = append(users, map[string]interface{}{
			"username":   fmt.Sprintf("bulktest%03d", i),
			"first_name": "Bulk",
			"last_name":  fmt.Sprintf("Test %03d", i),
			"email":      fmt.Sprintf("bulktest%03d@example.com", i),
		})
	}
	payload := map[string]interface{}{"users": users}

	jsonData, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", apiBase()+"/api/v1/users/import", bytes.NewBuffer(jsonData))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+authToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Import request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		log.Fatalf("Import request returned %d: %s", resp.StatusCode, string(body))
	}

	var started ImportStartResponse
	if err := json.Unmarshal(body, &started); err != nil {
		log.Fatalf("Failed to decode import response: %v", err)
	}
	return started.Data.JobID
}

func monitorJob(timeout time.Duration) {
	authToken := os.Getenv("TEST_AUTH_TOKEN")
	deadline := time.Now().Add(timeout)
	lastProcessed := -1

	for time.Now().Before(deadline) {
		req, _ := http.NewRequest("GET", apiBase()+"/api/v1/users/import/active", nil)
		req.Header.Set("Authorization", "Bearer "+authToken)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("   ⚠️  Poll failed: %v\n", err)
			time.Sleep(time.Second)
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		var active ActiveJobResponse
		if err := json.Unmarshal(body, &active); err != nil {
			fmt.Printf("   ⚠️  Bad poll response: %s\n", truncate(string(body), 80))
			time.Sleep(time.Second)
			continue
		}

		job := active.Data.Job
		if job == nil {
			fmt.Println("   ✅ No active job reported; import finished")
			return
		}

		if job.ProcessedRows != lastProcessed {
			lastProcessed = job.ProcessedRows
			fmt.Printf("   🔄 %s: %d/%d rows (%d%%) - created %d, skipped %d\n",
				job.Status, job.ProcessedRows, job.TotalRows, job.Progress,
				job.CreatedCount, job.SkippedCount)
		}

		if job.Status == "completed" || job.Status == "failed" || job.Status == "cancelled" {
			if job.Error != "" {
				fmt.Printf("   ❌ Job ended with error: %s\n", job.Error)
			} else {
				fmt.Printf("   ✅ Job %s\n", job.Status)
			}
			return
		}

		time.Sleep(time.Second)
	}

	fmt.Println("   ⚠️  Timed out waiting for job to finish")
}

func printFinalState() {
	var imported []User
	db.Where("username LIKE 'bulktest%'").Order("username ASC").Find(&imported)

	fmt.Println("\n════════════════════════════════════════════════════════════════")
	fmt.Printf("👥 Imported Users (%d):\n", len(imported))
	for i, u := range imported {
		if i >= 10 {
			fmt.Printf("   ... and %d more\n", len(imported)-10)
			break
		}
		fmt.Printf("   %d. [%d] %s - %s %s\n", i+1, u.IDN, u.Username, u.FirstName, u.LastName)
	}

	// Notifications
	var notifications []UserNotification
	db.Where("category = ?", "user_import").Order("updated_at DESC").Limit(5).Find(&notifications)
	if len(notifications) > 0 {
		fmt.Printf("\n🔔 Recent Notifications (%d):\n", len(notifications))
		for i, n := range notifications {
			fmt.Printf("   %d. [%s] %s\n", i+1, n.Type, n.Title)
			fmt.Printf("      Message: %s\n", truncate(n.Message, 70))
			fmt.Printf("      Updated: %s\n", n.UpdatedAt.Format("15:04:05"))
		}
	} else {
		fmt.Println("\n🔔 Notifications: None")
	}

	fmt.Println("\n════════════════════════════════════════════════════════════════")
}

func apiBase() string {
	if base := os.Getenv("API_BASE_URL"); base != "" {
		return base
	}
	return "http://localhost:8080"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
