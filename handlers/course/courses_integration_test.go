package course

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/schoolhub-io/schoolhub/model"
	authutil "github.com/schoolhub-io/schoolhub/utils/auth"
	"github.com/schoolhub-io/schoolhub/utils/middleware"
)

type courseTestEnv struct {
	app        *fiber.App
	db         *gorm.DB
	jwtManager *authutil.JWTManager
	school     model.School
	term       model.Term
	admin      model.User
	student    model.User
	broke      model.User
}

func setupCourseTestEnv(t *testing.T) *courseTestEnv {
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
		&model.Registration{}, &model.GradeWeight{}, &model.UserNotification{},
		&model.JWTTokenBlacklist{},
	)
	require.NoError(t, err)

	jwtManager := authutil.NewJWTManager(authutil.JWTConfig{
		Secret:        "course-handler-test-secret",
		Expiry:        time.Hour,
		RefreshExpiry: 24 * time.Hour,
		Issuer:        "schoolhub-test",
	})

	handler := NewCourseHandler(db)
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, db)

	app := fiber.New()
	api := app.Group("/api/v1", authMiddleware.Required())
	api.Get("/courses/mine", handler.MyCourses)
	api.Get("/courses", handler.ListCourses)
	api.Post("/courses", handler.CreateCourse)
	api.Get("/courses/:id", handler.GetCourse)
	api.Post("/courses/:id/register", handler.Register)
	api.Delete("/courses/:id/register", handler.Unregister)

	unique := time.Now().UnixNano()
	env := &courseTestEnv{app: app, db: db, jwtManager: jwtManager}

	env.school = model.School{
		Name:     fmt.Sprintf("Course Test School %d", unique),
		Code:     fmt.Sprintf("CT%d", unique%100000),
		IsActive: true,
	}
	require.NoError(t, db.Create(&env.school).Error)

	now := time.Now().UTC()
	env.term = model.Term{
		SchoolID:  env.school.ID,
		Name:      fmt.Sprintf("Course Test Term %d", unique),
		StartDate: now.AddDate(0, 0, -30),
		EndDate:   now.AddDate(0, 0, 30),
	}
	require.NoError(t, db.Create(&env.term).Error)

	env.admin = model.User{
		SchoolID:     env.school.ID,
		IDN:          1,
		Username:     fmt.Sprintf("ct_admin_%d", unique%1000000),
		FirstName:    "Course",
		LastName:     "Admin",
		IsAdmin:      true,
		PasswordHash: "not-a-login-hash",
	}
	env.student = model.User{
		SchoolID:     env.school.ID,
		IDN:          2,
		Username:     fmt.Sprintf("ct_student_%d", unique%1000000),
		FirstName:    "Paying",
		LastName:     "Student",
		IsStudent:    true,
		Credits:      1000,
		PasswordHash: "not-a-login-hash",
	}
	env.broke = model.User{
		SchoolID:     env.school.ID,
		IDN:          3,
		Username:     fmt.Sprintf("ct_broke_%d", unique%1000000),
		FirstName:    "Broke",
		LastName:     "Student",
		IsStudent:    true,
		Credits:      100,
		PasswordHash: "not-a-login-hash",
	}
	require.NoError(t, db.Create(&env.admin).Error)
	require.NoError(t, db.Create(&env.student).Error)
	require.NoError(t, db.Create(&env.broke).Error)

	userIDs := []uint{env.admin.ID, env.student.ID, env.broke.ID}
	t.Cleanup(func() {
		db.Unscoped().Where("user_id IN ?", userIDs).Delete(&model.UserNotification{})
		db.Unscoped().Where("user_id IN ?", userIDs).Delete(&model.Registration{})
		db.Unscoped().Where("school_id = ?", env.school.ID).Delete(&model.Course{})
		db.Unscoped().Where("id IN ?", userIDs).Delete(&model.User{})
		db.Unscoped().Delete(&env.term)
		db.Unscoped().Delete(&env.school)
	})

	return env
}

func (env *courseTestEnv) token(t *testing.T, user model.User) string {
	t.Helper()

	token, _, err := env.jwtManager.GenerateAccessToken(
		user.ID, user.SchoolID, user.Username, user.Role(), user.TokenVersion)
	require.NoError(t, err)
	return token
}

func (env *courseTestEnv) request(t *testing.T, method, path, token string, payload interface{}) *http.Response {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := env.app.Test(req, 15000)
	require.NoError(t, err)
	return resp
}

func (env *courseTestEnv) createCourse(t *testing.T, name, code string, price int64, capacity int) uint {
	t.Helper()

	resp := env.request(t, http.MethodPost, "/api/v1/courses", env.token(t, env.admin), fiber.Map{
		"term_id":  env.term.ID,
		"name":     name,
		"code":     code,
		"days":     []string{"mon", "wed"},
		"price":    price,
		"capacity": capacity,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Data struct {
			ID uint `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotZero(t, created.Data.ID)
	return created.Data.ID
}

func (env *courseTestEnv) credits(t *testing.T, userID uint) int64 {
	t.Helper()

	var user model.User
	require.NoError(t, env.db.First(&user, userID).Error)
	return user.Credits
}

func TestCourseRegistrationFlow_Integration(t *testing.T) {
	env := setupCourseTestEnv(t)
	unique := time.Now().UnixNano() % 1000000

	courseID := env.createCourse(t, "Integration Algebra", fmt.Sprintf("ITG-A%d", unique), 500, 0)

	// Students cannot create courses
	resp := env.request(t, http.MethodPost, "/api/v1/courses", env.token(t, env.student), fiber.Map{
		"term_id": env.term.ID,
		"name":    "Unauthorized Course",
		"code":    fmt.Sprintf("ITG-X%d", unique),
		"days":    []string{"fri"},
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Registration deducts the course price from the student's balance
	registerPath := fmt.Sprintf("/api/v1/courses/%d/register", courseID)
	resp = env.request(t, http.MethodPost, registerPath, env.token(t, env.student), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var registered struct {
		Success bool `json:"success"`
		Data    struct {
			CourseID  uint  `json:"course_id"`
			PricePaid int64 `json:"price_paid"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&registered))
	assert.Equal(t, courseID, registered.Data.CourseID)
	assert.Equal(t, int64(500), registered.Data.PricePaid)
	assert.Equal(t, int64(500), env.credits(t, env.student.ID))

	// Registering twice is a conflict and charges nothing
	resp = env.request(t, http.MethodPost, registerPath, env.token(t, env.student), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, int64(500), env.credits(t, env.student.ID))

	// A student without enough credits is rejected
	resp = env.request(t, http.MethodPost, registerPath, env.token(t, env.broke), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int64(100), env.credits(t, env.broke.ID))

	// Free course with a single seat
	smallID := env.createCourse(t, "Integration Seminar", fmt.Sprintf("ITG-B%d", unique), 0, 1)
	smallPath := fmt.Sprintf("/api/v1/courses/%d/register", smallID)

	resp = env.request(t, http.MethodPost, smallPath, env.token(t, env.broke), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(100), env.credits(t, env.broke.ID))

	resp = env.request(t, http.MethodPost, smallPath, env.token(t, env.student), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The student's enrollments list their paid course
	resp = env.request(t, http.MethodGet, "/api/v1/courses/mine", env.token(t, env.student), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var mine struct {
		Data []struct {
			CourseID uint `json:"course_id"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&mine))
	require.Len(t, mine.Data, 1)
	assert.Equal(t, courseID, mine.Data[0].CourseID)

	// Unregistering frees the seat but does not refund credits
	resp = env.request(t, http.MethodDelete, registerPath, env.token(t, env.student), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(500), env.credits(t, env.student.ID))

	resp = env.request(t, http.MethodDelete, registerPath, env.token(t, env.student), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Course listing is school-scoped and paginated
	resp = env.request(t, http.MethodGet, "/api/v1/courses", env.token(t, env.student), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listed struct {
		Success bool `json:"success"`
		Data    []struct {
			ID uint `json:"id"`
		} `json:"data"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	assert.True(t, listed.Success)
	assert.Equal(t, int64(2), listed.Pagination.Total)
}

func TestCourseRegistrationClosedForPastTerm_Integration(t *testing.T) {
	env := setupCourseTestEnv(t)
	unique := time.Now().UnixNano() % 1000000

	now := time.Now().UTC()
	pastTerm := model.Term{
		SchoolID:  env.school.ID,
		Name:      fmt.Sprintf("Past Term %d", unique),
		StartDate: now.AddDate(0, -6, 0),
		EndDate:   now.AddDate(0, -3, 0),
	}
	require.NoError(t, env.db.Create(&pastTerm).Error)

	course := model.Course{
		SchoolID: env.school.ID,
		TermID:   pastTerm.ID,
		Name:     "Finished Course",
		Code:     fmt.Sprintf("ITG-P%d", unique),
		Days:     datatypes.JSON([]byte(`["mon"]`)),
	}
	require.NoError(t, env.db.Create(&course).Error)

	t.Cleanup(func() {
		env.db.Unscoped().Delete(&course)
		env.db.Unscoped().Delete(&pastTerm)
	})

	path := fmt.Sprintf("/api/v1/courses/%d/register", course.ID)
	resp := env.request(t, http.MethodPost, path, env.token(t, env.student), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
