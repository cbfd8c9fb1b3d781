package router

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schoolhub-io/schoolhub/database"
	"github.com/schoolhub-io/schoolhub/handlers"
	admin_handlers "github.com/schoolhub-io/schoolhub/handlers/admin"
	attendance_handlers "github.com/schoolhub-io/schoolhub/handlers/attendance"
	auth_handlers "github.com/schoolhub-io/schoolhub/handlers/auth"
	course_handlers "github.com/schoolhub-io/schoolhub/handlers/course"
	grade_handlers "github.com/schoolhub-io/schoolhub/handlers/grade"
	notification_handlers "github.com/schoolhub-io/schoolhub/handlers/notification"
	payment_handlers "github.com/schoolhub-io/schoolhub/handlers/payment"
	report_handlers "github.com/schoolhub-io/schoolhub/handlers/report"
	school_handlers "github.com/schoolhub-io/schoolhub/handlers/school"
	term_handlers "github.com/schoolhub-io/schoolhub/handlers/term"
	user_handlers "github.com/schoolhub-io/schoolhub/handlers/user"
	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/services"
	"github.com/schoolhub-io/schoolhub/services/razorpay"
	"github.com/schoolhub-io/schoolhub/utils"
	"github.com/schoolhub-io/schoolhub/utils/auth"
	"github.com/schoolhub-io/schoolhub/utils/cache"
	"github.com/schoolhub-io/schoolhub/utils/middleware"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, store database.Storage) {
	// Get JWT secret from environment
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "schoolhub-api"
	}

	// Initialize JWT manager with config
	jwtConfig := auth.JWTConfig{
		Secret:        jwtSecret,
		Expiry:        24 * time.Hour,     // Access token expires in 24 hours
		RefreshExpiry: 7 * 24 * time.Hour, // Refresh token expires in 7 days
		Issuer:        jwtIssuer,
	}
	jwtManager := auth.NewJWTManager(jwtConfig)

	// Get DB instance (type assert from interface)
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		log.Fatal("Failed to get GORM DB instance")
	}

	// Initialize Redis cache for brute force protection, import progress
	// tracking and attendance summary caching
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	redisCache, err := cache.NewRedisCache(redisURL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v. Brute force protection, import progress and summary caching will be disabled.", err)
	}

	// Initialize brute force protection
	var bruteForceProtection *middleware.BruteForceProtection
	if redisCache != nil {
		bruteForceProtection = middleware.NewBruteForceProtection(redisCache)
		applySecuritySettings(db, bruteForceProtection)
	}

	// Initialize auth middleware with DB for blacklist checking
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, db)

	// Initialize auth handler with brute force protection
	authHandler := auth_handlers.NewAuthHandler(db, jwtManager, bruteForceProtection)

	// Initialize resource handlers
	schoolHandler := school_handlers.NewSchoolHandler(db)
	termHandler := term_handlers.NewTermHandler(db)
	courseHandler := course_handlers.NewCourseHandler(db)
	attendanceHandler := attendance_handlers.NewAttendanceHandler(db, redisCache)
	gradeHandler := grade_handlers.NewGradeHandler(db)
	userHandler := user_handlers.NewUserHandler(db, redisCache)
	reportHandler := report_handlers.NewReportHandler(db)
	notificationHandler := notification_handlers.NewNotificationHandler(services.NewNotificationService(db))

	// Initialize billing with the Razorpay provider client
	razorpayKeyID := os.Getenv("RAZORPAY_KEY_ID")
	razorpayKeySecret := os.Getenv("RAZORPAY_KEY_SECRET")
	if razorpayKeyID == "" || razorpayKeySecret == "" {
		log.Printf("Warning: Razorpay credentials are not configured. Order creation will fail until RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are set.")
	}
	paymentProvider := razorpay.NewClient(razorpay.Config{
		KeyID:     razorpayKeyID,
		KeySecret: razorpayKeySecret,
	})
	paymentHandler := payment_handlers.NewPaymentHandler(db, paymentProvider, os.Getenv("RAZORPAY_WEBHOOK_SECRET"))

	// Apply security middleware
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:3001"
	}

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    allowedOrigins,
		RateLimitRequests: 100,             // 100 requests
		RateLimitWindow:   1 * time.Minute, // per minute
	})

	// Request duration metrics
	app.Use(middleware.Metrics())

	// Health check endpoint (public)
	app.Get("/ping", utils.MakeHTTPHandleFunc(handlers.HandleCheckHealth, store))

	// Prometheus metrics endpoint (public)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1 group
	api := app.Group("/api/v1")

	// Auth routes (public)
	authGroup := api.Group("/auth")
	authGroup.Post("/register", authHandler.Register)

	// Login with brute force protection
	if bruteForceProtection != nil {
		authGroup.Post("/login", bruteForceProtection.CheckAndRecordAttempt(), authHandler.Login)
	} else {
		authGroup.Post("/login", authHandler.Login)
	}

	authGroup.Post("/refresh", authHandler.RefreshToken)
	authGroup.Post("/forgot-password", authHandler.ForgotPassword)
	authGroup.Post("/reset-password", authHandler.ResetPassword)

	// Protected auth routes
	authGroup.Post("/logout", authMiddleware.Required(), authHandler.Logout)
	authGroup.Post("/change-password", authMiddleware.Required(), authHandler.ChangePassword)

	// Profile routes (protected)
	profileGroup := api.Group("/profile", authMiddleware.Required())
	profileGroup.Get("/", authHandler.GetProfile)
	profileGroup.Put("/", authHandler.UpdateProfile)

	// Public school directory (register asks for a school code)
	api.Get("/schools/directory", utils.MakeHTTPHandleFunc(handlers.HandleSchoolDirectory, store))

	// Schools routes (admin only; every other resource is scoped to the
	// caller's school)
	schools := api.Group("/schools", authMiddleware.RequireAdmin())
	schools.Get("/", schoolHandler.ListSchools)        // Admin: List schools
	schools.Get("/:id", schoolHandler.GetSchool)       // Admin: Get school by ID
	schools.Post("/", schoolHandler.CreateSchool)      // Admin: Create school
	schools.Put("/:id", schoolHandler.UpdateSchool)    // Admin: Update school
	schools.Delete("/:id", schoolHandler.DeleteSchool) // Admin: Delete school

	// Terms routes
	terms := api.Group("/terms", authMiddleware.Required())
	terms.Get("/", termHandler.ListTerms)                                       // List terms for caller's school
	terms.Get("/:id", termHandler.GetTerm)                                      // Get term with status
	terms.Post("/", authMiddleware.RequireAdmin(), termHandler.CreateTerm)      // Admin: Create term
	terms.Put("/:id", authMiddleware.RequireAdmin(), termHandler.UpdateTerm)    // Admin: Update term
	terms.Delete("/:id", authMiddleware.RequireAdmin(), termHandler.DeleteTerm) // Admin: Delete term with cascade

	// Courses routes
	courses := api.Group("/courses", authMiddleware.Required())
	courses.Get("/", courseHandler.ListCourses)                                       // List courses for caller's school
	courses.Get("/mine", courseHandler.MyCourses)                                     // Student: My registered courses
	courses.Get("/:id", courseHandler.GetCourse)                                      // Get course with term status
	courses.Post("/", authMiddleware.RequireAdmin(), courseHandler.CreateCourse)      // Admin: Create course
	courses.Put("/:id", authMiddleware.RequireAdmin(), courseHandler.UpdateCourse)    // Admin: Update course
	courses.Delete("/:id", authMiddleware.RequireAdmin(), courseHandler.DeleteCourse) // Admin: Delete course with cascade

	// Registration
	courses.Post("/:id/register", courseHandler.Register)     // Student: Register and pay with credits
	courses.Delete("/:id/register", courseHandler.Unregister) // Student: Drop course (no refund)

	// Grade weights (instructors and admins)
	courses.Get("/:id/weights", courseHandler.ListWeights)                // List grade weights for course
	courses.Post("/:id/weights", courseHandler.CreateWeight)              // Instructor: Create grade weight
	courses.Put("/:id/weights/:weight_id", courseHandler.UpdateWeight)    // Instructor: Update grade weight
	courses.Delete("/:id/weights/:weight_id", courseHandler.DeleteWeight) // Instructor: Delete grade weight

	// Attendance
	courses.Post("/:id/attendance/toggle", attendanceHandler.Toggle)                       // Instructor: Toggle attendance mark
	courses.Get("/:id/attendance", attendanceHandler.CourseAttendance)                     // Instructor: Roster attendance percentages
	api.Get("/attendance/mine", authMiddleware.Required(), attendanceHandler.MyAttendance) // Student: Own attendance

	// Grades
	courses.Get("/:id/gradebook", gradeHandler.CourseGradebook)               // Instructor: Roster weighted averages
	api.Put("/grades", authMiddleware.Required(), gradeHandler.SetGrade)      // Instructor: Set or clear a score
	api.Get("/grades/mine", authMiddleware.Required(), gradeHandler.MyGrades) // Student: Own grades with average

	// Payments
	payments := api.Group("/payments")
	payments.Post("/orders", authMiddleware.Required(), paymentHandler.CreateOrder) // Student: Create top-up order
	payments.Get("/mine", authMiddleware.Required(), paymentHandler.MyInvoices)     // Student: Own invoices
	payments.Post("/webhook", paymentHandler.Webhook)                               // Provider callback (signature-verified, no auth)

	// Users routes (admin only)
	users := api.Group("/users", authMiddleware.RequireAdmin())
	users.Get("/import/active", userHandler.ActiveImport)         // Admin: Active import job for caller
	users.Get("/import/:job_id/events", userHandler.ImportEvents) // Admin: SSE import progress stream
	users.Post("/import", userHandler.ImportUsers)                // Admin: Bulk import from JSON body
	users.Post("/import/xlsx", userHandler.ImportUsersXLSX)       // Admin: Bulk import from XLSX upload
	users.Get("/", userHandler.ListUsers)                         // Admin: List users in school
	users.Get("/:id", userHandler.GetUser)                        // Admin: Get user with registrations
	users.Post("/", userHandler.CreateUser)                       // Admin: Create user
	users.Put("/:id", userHandler.UpdateUser)                     // Admin: Update user
	users.Delete("/:id", userHandler.DeleteUser)                  // Admin: Delete user with cascade
	users.Put("/:id/role", userHandler.SetRole)                   // Admin: Change user role
	users.Post("/:id/credits", userHandler.AdjustCredits)         // Admin: Adjust credit balance

	// Reports
	reports := api.Group("/reports", authMiddleware.Required())
	reports.Get("/dashboard", reportHandler.Dashboard)                   // Admin: School dashboard
	reports.Get("/courses/:id", reportHandler.CourseReport)              // Instructor: Course report
	reports.Get("/courses/:id/export", reportHandler.ExportCourseReport) // Instructor: XLSX download

	// Notifications
	notifications := api.Group("/notifications", authMiddleware.Required())
	notifications.Get("/", notificationHandler.GetNotifications)           // List own notifications
	notifications.Get("/unread-count", notificationHandler.GetUnreadCount) // Unread count
	notifications.Put("/read-all", notificationHandler.MarkAllAsRead)      // Mark all as read
	notifications.Put("/:id/read", notificationHandler.MarkAsRead)         // Mark one as read
	notifications.Delete("/", notificationHandler.DeleteAllNotifications)  // Delete all own notifications
	notifications.Delete("/:id", notificationHandler.DeleteNotification)   // Delete one notification

	// Admin panel (loads the admin user for audit logging)
	admin := api.Group("/admin", authMiddleware.RequireAdmin(), middleware.RequireAdmin(store))

	// Admin user management
	admin.Get("/users/stats", func(c *fiber.Ctx) error { return admin_handlers.GetUserStats(c, store) })
	admin.Post("/users/:id/reset-password", middleware.AdminAuditLog(store, "password_reset", "users"), func(c *fiber.Ctx) error { return admin_handlers.ResetUserPassword(c, store) })

	// Admin analytics
	admin.Get("/analytics/overview", func(c *fiber.Ctx) error { return admin_handlers.GetOverviewAnalytics(c, store) })
	admin.Get("/analytics/users", func(c *fiber.Ctx) error { return admin_handlers.GetUserAnalytics(c, store) })
	admin.Get("/analytics/registrations", func(c *fiber.Ctx) error { return admin_handlers.GetRegistrationAnalytics(c, store) })
	admin.Get("/analytics/payments", func(c *fiber.Ctx) error { return admin_handlers.GetPaymentAnalytics(c, store) })

	// Admin audit logs
	admin.Get("/audit", func(c *fiber.Ctx) error { return admin_handlers.ListAuditLogs(c, store) })
	admin.Get("/audit/:id", func(c *fiber.Ctx) error { return admin_handlers.GetAuditLog(c, store) })

	// Admin settings management
	admin.Get("/settings", func(c *fiber.Ctx) error { return admin_handlers.ListSettings(c, store) })
	admin.Get("/settings/:key", func(c *fiber.Ctx) error { return admin_handlers.GetSetting(c, store) })
	admin.Post("/settings", middleware.AdminAuditLog(store, "setting_create", "settings"), func(c *fiber.Ctx) error { return admin_handlers.CreateSetting(c, store) })
	admin.Put("/settings/:key", middleware.AdminAuditLog(store, "setting_update", "settings"), func(c *fiber.Ctx) error { return admin_handlers.UpdateSetting(c, store) })
	admin.Delete("/settings/:key", middleware.AdminAuditLog(store, "setting_delete", "settings"), func(c *fiber.Ctx) error { return admin_handlers.DeleteSetting(c, store) })
}

// applySecuritySettings overrides login lockout thresholds from app settings
func applySecuritySettings(db *gorm.DB, bf *middleware.BruteForceProtection) {
	var settings []model.AppSetting
	err := db.Where("key IN ?", []string{"security.max_login_attempts", "security.lockout_duration_minutes"}).
		Find(&settings).Error
	if err != nil {
		return
	}

	for _, s := range settings {
		switch s.Key {
		case "security.max_login_attempts":
			if v, err := strconv.ParseInt(s.Value, 10, 64); err == nil && v > 0 {
				bf.MaxUserAttempts = v
			}
		case "security.lockout_duration_minutes":
			if v, err := strconv.Atoi(s.Value); err == nil && v > 0 {
				bf.UserLockDuration = time.Duration(v) * time.Minute
			}
		}
	}
}
