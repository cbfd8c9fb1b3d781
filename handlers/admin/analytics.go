package admin

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/schoolhub-io/schoolhub/database"
	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/utils/response"
	"gorm.io/gorm"
)

// GetOverviewAnalytics retrieves school-wide overview statistics
// GET /admin/analytics/overview
func GetOverviewAnalytics(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	adminUser, ok := c.Locals("adminUser").(model.User)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}
	schoolID := adminUser.SchoolID

	var stats struct {
		TotalUsers         int64
		TotalCourses       int64
		TotalTerms         int64
		TotalRegistrations int64
		PaidInvoices       int64
		RevenueCollected   int64
		PresentToday       int64
		PresentThisWeek    int64
	}

	// Fetch all counts
	db.Model(&model.User{}).Where("school_id = ?", schoolID).Count(&stats.TotalUsers)
	db.Model(&model.Course{}).Where("school_id = ?", schoolID).Count(&stats.TotalCourses)
	db.Model(&model.Term{}).Where("school_id = ?", schoolID).Count(&stats.TotalTerms)
	db.Model(&model.Registration{}).
		Joins("JOIN courses ON courses.id = registrations.course_id").
		Where("courses.school_id = ?", schoolID).
		Count(&stats.TotalRegistrations)
	db.Model(&model.Invoice{}).
		Where("school_id = ? AND status = ?", schoolID, model.InvoiceStatusPaid).
		Count(&stats.PaidInvoices)
	db.Model(&model.Invoice{}).
		Where("school_id = ? AND status = ?", schoolID, model.InvoiceStatusPaid).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&stats.RevenueCollected)

	// Students marked present
	db.Model(&model.AttendanceRecord{}).
		Joins("JOIN courses ON courses.id = attendance_records.course_id").
		Where("courses.school_id = ? AND attendance_records.date >= ?", schoolID, time.Now().Add(-24*time.Hour)).
		Distinct("attendance_records.user_id").
		Count(&stats.PresentToday)
	db.Model(&model.AttendanceRecord{}).
		Joins("JOIN courses ON courses.id = attendance_records.course_id").
		Where("courses.school_id = ? AND attendance_records.date >= ?", schoolID, time.Now().Add(-7*24*time.Hour)).
		Distinct("attendance_records.user_id").
		Count(&stats.PresentThisWeek)

	return response.SuccessWithMessage(c, "Overview analytics retrieved successfully", stats)
}

// GetUserAnalytics retrieves detailed user analytics
// GET /admin/analytics/users
func GetUserAnalytics(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	adminUser, ok := c.Locals("adminUser").(model.User)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}
	schoolID := adminUser.SchoolID

	var analytics struct {
		TotalUsers  int64
		UsersByRole []struct {
			Role  string
			Count int64
		}
		UserGrowth []struct {
			Date  string
			Count int64
		}
		TopStudents []struct {
			UserID        uint
			Username      string
			FullName      string
			Registrations int64
		}
	}

	// Total users
	db.Model(&model.User{}).Where("school_id = ?", schoolID).Count(&analytics.TotalUsers)

	// Users by role
	db.Raw(`
		SELECT CASE WHEN is_admin THEN 'admin' WHEN is_instructor THEN 'instructor' ELSE 'student' END as role,
			   COUNT(*) as count
		FROM users
		WHERE school_id = ? AND deleted_at IS NULL
		GROUP BY 1
		ORDER BY count DESC
	`, schoolID).Scan(&analytics.UsersByRole)

	// User growth (last 30 days)
	db.Raw(`
		SELECT DATE(created_at) as date, COUNT(*) as count
		FROM users
		WHERE school_id = ?
		AND created_at >= NOW() - INTERVAL '30 days'
		AND deleted_at IS NULL
		GROUP BY DATE(created_at)
		ORDER BY date ASC
	`, schoolID).Scan(&analytics.UserGrowth)

	// Top students by course load
	db.Raw(`
		SELECT u.id as user_id, u.username, u.first_name || ' ' || u.last_name as full_name,
			   COUNT(r.course_id) as registrations
		FROM users u
		JOIN registrations r ON u.id = r.user_id
		WHERE u.school_id = ? AND u.deleted_at IS NULL
		GROUP BY u.id, u.username, u.first_name, u.last_name
		ORDER BY registrations DESC
		LIMIT 10
	`, schoolID).Scan(&analytics.TopStudents)

	return response.SuccessWithMessage(c, "User analytics retrieved successfully", analytics)
}

// GetRegistrationAnalytics retrieves course enrollment analytics
// GET /admin/analytics/registrations
func GetRegistrationAnalytics(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	adminUser, ok := c.Locals("adminUser").(model.User)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}
	schoolID := adminUser.SchoolID

	var analytics struct {
		TotalRegistrations    int64
		RegistrationsToday    int64
		RegistrationsThisWeek int64
		RegistrationsByDay    []struct {
			Date  string
			Count int64
		}
		TopCourses []struct {
			CourseID   uint
			CourseName string
			Capacity   int
			Enrolled   int64
		}
	}

	// Registration counts
	db.Model(&model.Registration{}).
		Joins("JOIN courses ON courses.id = registrations.course_id").
		Where("courses.school_id = ?", schoolID).
		Count(&analytics.TotalRegistrations)
	db.Model(&model.Registration{}).
		Joins("JOIN courses ON courses.id = registrations.course_id").
		Where("courses.school_id = ? AND registrations.enrolled_at >= ?", schoolID, time.Now().Add(-24*time.Hour)).
		Count(&analytics.RegistrationsToday)
	db.Model(&model.Registration{}).
		Joins("JOIN courses ON courses.id = registrations.course_id").
		Where("courses.school_id = ? AND registrations.enrolled_at >= ?", schoolID, time.Now().Add(-7*24*time.Hour)).
		Count(&analytics.RegistrationsThisWeek)

	// Registrations by day (last 30 days)
	db.Raw(`
		SELECT DATE(r.enrolled_at) as date, COUNT(*) as count
		FROM registrations r
		JOIN courses c ON r.course_id = c.id
		WHERE c.school_id = ?
		AND r.enrolled_at >= NOW() - INTERVAL '30 days'
		GROUP BY DATE(r.enrolled_at)
		ORDER BY date ASC
	`, schoolID).Scan(&analytics.RegistrationsByDay)

	// Top courses by enrollment
	db.Raw(`
		SELECT c.id as course_id, c.name as course_name, c.capacity, COUNT(r.user_id) as enrolled
		FROM courses c
		LEFT JOIN registrations r ON c.id = r.course_id
		WHERE c.school_id = ? AND c.deleted_at IS NULL
		GROUP BY c.id, c.name, c.capacity
		ORDER BY enrolled DESC
		LIMIT 10
	`, schoolID).Scan(&analytics.TopCourses)

	return response.SuccessWithMessage(c, "Registration analytics retrieved successfully", analytics)
}

// GetPaymentAnalytics retrieves billing and revenue analytics
// GET /admin/analytics/payments
func GetPaymentAnalytics(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	adminUser, ok := c.Locals("adminUser").(model.User)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}
	schoolID := adminUser.SchoolID

	var analytics struct {
		TotalInvoices    int64
		InvoicesByStatus []struct {
			Status string
			Count  int64
		}
		TotalRevenue    int64
		RevenueToday    int64
		RevenueThisWeek int64
		RevenueByDay    []struct {
			Date    string
			Revenue int64
		}
		TopPayers []struct {
			UserID    uint
			Username  string
			TotalPaid int64
			Payments  int64
		}
	}

	// Invoice counts
	db.Model(&model.Invoice{}).Where("school_id = ?", schoolID).Count(&analytics.TotalInvoices)
	db.Model(&model.Invoice{}).
		Where("school_id = ?", schoolID).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&analytics.InvoicesByStatus)

	// Revenue (paid invoices only, minor currency units)
	db.Model(&model.Invoice{}).
		Where("school_id = ? AND status = ?", schoolID, model.InvoiceStatusPaid).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&analytics.TotalRevenue)
	db.Model(&model.Invoice{}).
		Where("school_id = ? AND status = ? AND paid_at >= ?", schoolID, model.InvoiceStatusPaid, time.Now().Add(-24*time.Hour)).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&analytics.RevenueToday)
	db.Model(&model.Invoice{}).
		Where("school_id = ? AND status = ? AND paid_at >= ?", schoolID, model.InvoiceStatusPaid, time.Now().Add(-7*24*time.Hour)).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&analytics.RevenueThisWeek)

	// Revenue by day (last 30 days)
	db.Raw(`
		SELECT DATE(paid_at) as date, COALESCE(SUM(amount), 0) as revenue
		FROM invoices
		WHERE school_id = ? AND status = 'paid'
		AND paid_at >= NOW() - INTERVAL '30 days'
		AND deleted_at IS NULL
		GROUP BY DATE(paid_at)
		ORDER BY date ASC
	`, schoolID).Scan(&analytics.RevenueByDay)

	// Top payers
	db.Raw(`
		SELECT i.user_id, u.username, COALESCE(SUM(i.amount), 0) as total_paid, COUNT(*) as payments
		FROM invoices i
		JOIN users u ON i.user_id = u.id
		WHERE i.school_id = ? AND i.status = 'paid' AND i.deleted_at IS NULL
		GROUP BY i.user_id, u.username
		ORDER BY total_paid DESC
		LIMIT 10
	`, schoolID).Scan(&analytics.TopPayers)

	return response.SuccessWithMessage(c, "Payment analytics retrieved successfully", analytics)
}
