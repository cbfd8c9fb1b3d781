package services

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/schoolhub-io/schoolhub/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAttendancePercent(t *testing.T) {
	mon := day(2025, time.March, 3)
	wed := day(2025, time.March, 5)
	fri := day(2025, time.March, 7)

	testCases := []struct {
		name      string
		scheduled []time.Time
		recorded  []time.Time
		expected  int
	}{
		{
			name:      "empty schedule never divides by zero",
			scheduled: nil,
			recorded:  []time.Time{mon, wed},
			expected:  0,
		},
		{
			name:      "full attendance with extra recorded days is 100",
			scheduled: []time.Time{mon, wed},
			recorded:  []time.Time{mon, wed, fri},
			expected:  100,
		},
		{
			name:      "one of three rounds to 33",
			scheduled: []time.Time{mon, wed, fri},
			recorded:  []time.Time{mon},
			expected:  33,
		},
		{
			name:      "two of three rounds to 67",
			scheduled: []time.Time{mon, wed, fri},
			recorded:  []time.Time{mon, wed},
			expected:  67,
		},
		{
			name:      "no recorded days is 0",
			scheduled: []time.Time{mon, wed, fri},
			recorded:  nil,
			expected:  0,
		},
		{
			name:      "timestamps collapse to calendar days",
			scheduled: []time.Time{mon, wed},
			recorded: []time.Time{
				mon.Add(9 * time.Hour),
				mon.Add(14 * time.Hour),
				wed.Add(10*time.Hour + 30*time.Minute),
			},
			expected: 100,
		},
		{
			name: "duplicate scheduled entries count once",
			scheduled: []time.Time{
				mon,
				mon.Add(8 * time.Hour),
				wed,
			},
			recorded: []time.Time{mon},
			expected: 50,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, AttendancePercent(tc.scheduled, tc.recorded))
		})
	}
}

func TestWeightedGradeAverage(t *testing.T) {
	testCases := []struct {
		name       string
		checkpoint []float64
		daily      []float64
		policy     WeightPolicy
		expected   float64
	}{
		{
			name:       "both empty is 0",
			checkpoint: nil,
			daily:      nil,
			expected:   0,
		},
		{
			name:       "daily only degrades to daily mean",
			checkpoint: nil,
			daily:      []float64{80, 90},
			expected:   85,
		},
		{
			name:       "checkpoint only degrades to checkpoint mean",
			checkpoint: []float64{70, 80, 90},
			daily:      nil,
			expected:   80,
		},
		{
			name:       "default split weighs checkpoint 60 daily 40",
			checkpoint: []float64{100},
			daily:      []float64{50},
			expected:   80, // 0.6*100 + 0.4*50
		},
		{
			name:       "explicit policy is honored",
			checkpoint: []float64{100},
			daily:      []float64{50},
			policy:     WeightPolicy{Checkpoint: 0.5, Daily: 0.5},
			expected:   75,
		},
		{
			name:       "broken policy falls back to default",
			checkpoint: []float64{100},
			daily:      []float64{50},
			policy:     WeightPolicy{Checkpoint: 0.9, Daily: 0.9},
			expected:   80,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := WeightedGradeAverage(tc.checkpoint, tc.daily, tc.policy)
			assert.InDelta(t, tc.expected, got, 1e-9)
		})
	}
}

func TestSplitScores(t *testing.T) {
	score := func(v float64) *float64 { return &v }

	weights := []model.GradeWeight{
		{CourseID: 1, Assignment: "midterm", Checkpoint: true},
		{CourseID: 1, Assignment: "final", Checkpoint: true},
		{CourseID: 1, Assignment: "homework-1", Checkpoint: false},
		{CourseID: 1, Assignment: "quiz-1", Checkpoint: false},
	}

	grades := []model.GradeRecord{
		{UserID: 7, Assignment: "midterm", Score: score(88)},
		{UserID: 7, Assignment: "final", Score: nil}, // not graded yet
		{UserID: 7, Assignment: "homework-1", Score: score(95)},
		{UserID: 7, Assignment: "quiz-1", Score: score(70)},
		{UserID: 7, Assignment: "extra-credit", Score: score(100)}, // no weight entry
	}

	checkpoint, daily := SplitScores(grades, weights)

	assert.Equal(t, []float64{88}, checkpoint)
	assert.Equal(t, []float64{95, 70}, daily)
}

func TestSplitScores_NoWeightTable(t *testing.T) {
	score := func(v float64) *float64 { return &v }

	grades := []model.GradeRecord{
		{UserID: 7, Assignment: "midterm", Score: score(88)},
	}

	checkpoint, daily := SplitScores(grades, nil)
	assert.Empty(t, checkpoint)
	assert.Empty(t, daily)
}

func TestScheduledDays(t *testing.T) {
	term := model.Term{
		StartDate: day(2025, time.March, 3),  // a Monday
		EndDate:   day(2025, time.March, 16), // a Sunday, two full weeks
	}

	t.Run("expands weekdays across the term", func(t *testing.T) {
		now := day(2025, time.April, 1) // past term end
		got := ScheduledDays([]string{"mon", "wed"}, term, now)

		assert.Equal(t, []time.Time{
			day(2025, time.March, 3),
			day(2025, time.March, 5),
			day(2025, time.March, 10),
			day(2025, time.March, 12),
		}, got)
	})

	t.Run("now cuts off future class days", func(t *testing.T) {
		now := day(2025, time.March, 6) // mid first week
		got := ScheduledDays([]string{"mon", "wed"}, term, now)

		assert.Equal(t, []time.Time{
			day(2025, time.March, 3),
			day(2025, time.March, 5),
		}, got)
	})

	t.Run("unknown weekday tokens are ignored", func(t *testing.T) {
		now := day(2025, time.April, 1)
		got := ScheduledDays([]string{"mon", "someday"}, term, now)

		assert.Equal(t, []time.Time{
			day(2025, time.March, 3),
			day(2025, time.March, 10),
		}, got)
	})

	t.Run("no recognizable days yields nil", func(t *testing.T) {
		assert.Nil(t, ScheduledDays(nil, term, day(2025, time.April, 1)))
	})
}

// setupGradebookTestDB connects to the integration test database and migrates
// the tables this suite touches.
func setupGradebookTestDB(t *testing.T) *gorm.DB {
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

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&model.School{}, &model.User{}, &model.AttendanceRecord{}))
	return db
}

func TestToggleAttendance_Integration(t *testing.T) {
	db := setupGradebookTestDB(t)
	svc := NewGradebookService(db)
	ctx := context.Background()

	school := model.School{Name: fmt.Sprintf("Toggle Test %d", time.Now().UnixNano()), Code: fmt.Sprintf("TG%d", time.Now().UnixNano()%100000), IsActive: true}
	require.NoError(t, db.Create(&school).Error)

	user := model.User{
		SchoolID:     school.ID,
		IDN:          1,
		Username:     fmt.Sprintf("toggle.user.%d", time.Now().UnixNano()),
		FirstName:    "Toggle",
		LastName:     "User",
		PasswordHash: "x",
		IsStudent:    true,
	}
	require.NoError(t, db.Create(&user).Error)

	t.Cleanup(func() {
		db.Where("user_id = ?", user.ID).Delete(&model.AttendanceRecord{})
		db.Unscoped().Delete(&user)
		db.Unscoped().Delete(&school)
	})

	classDay := time.Date(2025, time.March, 3, 9, 30, 0, 0, time.UTC)

	// First toggle marks the day
	marked, err := svc.ToggleAttendance(ctx, user.ID, classDay, nil)
	require.NoError(t, err)
	assert.True(t, marked)

	// A different time on the same day toggles it back off
	marked, err = svc.ToggleAttendance(ctx, user.ID, classDay.Add(4*time.Hour), nil)
	require.NoError(t, err)
	assert.False(t, marked)

	// The attendance set round-trips to empty
	days, err := svc.AttendedDays(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, days)
}
