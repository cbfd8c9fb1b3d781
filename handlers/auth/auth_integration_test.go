package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/schoolhub-io/schoolhub/model"
	authutil "github.com/schoolhub-io/schoolhub/utils/auth"
	"github.com/schoolhub-io/schoolhub/utils/middleware"
)

// authEnvelope mirrors the response wrapper for register and login
type authEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		User struct {
			ID       uint   `json:"id"`
			IDN      int    `json:"idn"`
			Username string `json:"username"`
		} `json:"user"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"data"`
}

func setupAuthTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
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

	err = db.AutoMigrate(&model.School{}, &model.User{}, &model.AppSetting{}, &model.JWTTokenBlacklist{}, &model.PasswordResetToken{})
	require.NoError(t, err)

	jwtManager := authutil.NewJWTManager(authutil.JWTConfig{
		Secret:        "auth-handler-test-secret",
		Expiry:        time.Hour,
		RefreshExpiry: 24 * time.Hour,
		Issuer:        "schoolhub-test",
	})

	handler := NewAuthHandler(db, jwtManager, nil)
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, db)

	app := fiber.New()
	api := app.Group("/api/v1")
	api.Post("/auth/register", handler.Register)
	api.Post("/auth/login", handler.Login)
	api.Get("/auth/profile", authMiddleware.Required(), handler.GetProfile)

	return app, db
}

func postJSON(t *testing.T, app *fiber.App, path string, payload interface{}) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 15000)
	require.NoError(t, err)
	return resp
}

func decodeAuth(t *testing.T, resp *http.Response) authEnvelope {
	t.Helper()

	var envelope authEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope
}

func TestRegisterLoginProfile_Integration(t *testing.T) {
	app, db := setupAuthTestApp(t)

	unique := time.Now().UnixNano()
	school := model.School{
		Name:     fmt.Sprintf("Auth Test School %d", unique),
		Code:     fmt.Sprintf("AT%d", unique%100000),
		IsActive: true,
	}
	require.NoError(t, db.Create(&school).Error)

	username := fmt.Sprintf("auth_user_%d", unique%1000000)
	password := "Sufficient1!"

	t.Cleanup(func() {
		db.Unscoped().Where("school_id = ?", school.ID).Delete(&model.User{})
		db.Unscoped().Delete(&school)
	})

	// Registering against a lower-cased school code must still resolve it
	resp := postJSON(t, app, "/api/v1/auth/register", fiber.Map{
		"school_code": strings.ToLower(school.Code),
		"username":    username,
		"password":    password,
		"first_name":  "Auth",
		"last_name":   "Tester",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	registered := decodeAuth(t, resp)
	assert.True(t, registered.Success)
	assert.Equal(t, username, registered.Data.User.Username)
	assert.NotZero(t, registered.Data.User.IDN)
	assert.NotEmpty(t, registered.Data.AccessToken)
	assert.NotEmpty(t, registered.Data.RefreshToken)

	// Same username again is a conflict
	resp = postJSON(t, app, "/api/v1/auth/register", fiber.Map{
		"school_code": school.Code,
		"username":    username,
		"password":    password,
		"first_name":  "Auth",
		"last_name":   "Tester",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Unknown school code
	resp = postJSON(t, app, "/api/v1/auth/register", fiber.Map{
		"school_code": "NOPE9",
		"username":    fmt.Sprintf("other_%d", unique%1000000),
		"password":    password,
		"first_name":  "Auth",
		"last_name":   "Tester",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Login with the registered credentials
	resp = postJSON(t, app, "/api/v1/auth/login", fiber.Map{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	loggedIn := decodeAuth(t, resp)
	assert.True(t, loggedIn.Success)
	require.NotEmpty(t, loggedIn.Data.AccessToken)

	// Wrong password
	resp = postJSON(t, app, "/api/v1/auth/login", fiber.Map{
		"username": username,
		"password": "not-the-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Profile with the access token
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/profile", nil)
	req.Header.Set("Authorization", "Bearer "+loggedIn.Data.AccessToken)
	profileResp, err := app.Test(req, 15000)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, profileResp.StatusCode)

	var profile struct {
		Success bool `json:"success"`
		Data    struct {
			Username string `json:"username"`
			SchoolID uint   `json:"school_id"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(profileResp.Body).Decode(&profile))
	assert.Equal(t, username, profile.Data.Username)
	assert.Equal(t, school.ID, profile.Data.SchoolID)

	// Profile without a token
	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/profile", nil)
	resp, err = app.Test(req, 15000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterRejectsWeakInput_Integration(t *testing.T) {
	app, db := setupAuthTestApp(t)

	unique := time.Now().UnixNano()
	school := model.School{
		Name:     fmt.Sprintf("Weak Input School %d", unique),
		Code:     fmt.Sprintf("WI%d", unique%100000),
		IsActive: true,
	}
	require.NoError(t, db.Create(&school).Error)

	t.Cleanup(func() {
		db.Unscoped().Where("school_id = ?", school.ID).Delete(&model.User{})
		db.Unscoped().Delete(&school)
	})

	// Short password
	resp := postJSON(t, app, "/api/v1/auth/register", fiber.Map{
		"school_code": school.Code,
		"username":    fmt.Sprintf("weak_%d", unique%1000000),
		"password":    "short",
		"first_name":  "Weak",
		"last_name":   "Password",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Bad username characters
	resp = postJSON(t, app, "/api/v1/auth/register", fiber.Map{
		"school_code": school.Code,
		"username":    "has spaces",
		"password":    "Sufficient1!",
		"first_name":  "Weak",
		"last_name":   "Username",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Missing fields
	resp = postJSON(t, app, "/api/v1/auth/register", fiber.Map{
		"school_code": school.Code,
		"username":    fmt.Sprintf("missing_%d", unique%1000000),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
