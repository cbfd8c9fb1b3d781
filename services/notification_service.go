package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/schoolhub-io/schoolhub/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationService handles user notifications
type NotificationService struct {
	db *gorm.DB
}

// NewNotificationService creates a new notification service
func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

// CreateNotificationRequest represents a request to create a notification
type CreateNotificationRequest struct {
	UserID   uint
	Type     model.NotificationType
	Category model.NotificationCategory
	Title    string
	Message  string
	Metadata *model.NotificationMetadata
}

// ListNotificationsOptions represents options for listing notifications
type ListNotificationsOptions struct {
	UserID     uint
	UnreadOnly bool
	Category   string
	Limit      int
	Offset     int
}

// CreateNotification creates a new notification for a user
func (s *NotificationService) CreateNotification(ctx context.Context, req CreateNotificationRequest) (*model.UserNotification, error) {
	notification := &model.UserNotification{
		UserID:   req.UserID,
		Type:     req.Type,
		Category: req.Category,
		Title:    req.Title,
		Message:  req.Message,
		Read:     false,
	}

	// Serialize metadata if provided
	if req.Metadata != nil {
		metadataJSON, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		notification.Metadata = datatypes.JSON(metadataJSON)
	}

	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	log.Printf("Created notification %d for user %d: %s", notification.ID, req.UserID, req.Title)
	return notification, nil
}

// GetNotificationsByUser retrieves notifications for a user
func (s *NotificationService) GetNotificationsByUser(ctx context.Context, opts ListNotificationsOptions) ([]model.UserNotification, int64, error) {
	var notifications []model.UserNotification
	var total int64

	query := s.db.WithContext(ctx).Model(&model.UserNotification{}).
		Where("user_id = ?", opts.UserID)

	if opts.UnreadOnly {
		query = query.Where("read = ?", false)
	}

	if opts.Category != "" {
		query = query.Where("category = ?", opts.Category)
	}

	// Get total count
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	// Apply pagination
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	} else {
		query = query.Limit(50) // Default limit
	}

	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	// Order by most recent first
	if err := query.Order("created_at DESC").Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch notifications: %w", err)
	}

	return notifications, total, nil
}

// GetNotificationByID retrieves a single notification by ID
func (s *NotificationService) GetNotificationByID(ctx context.Context, notificationID uint, userID uint) (*model.UserNotification, error) {
	var notification model.UserNotification

	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		First(&notification).Error

	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch notification: %w", err)
	}

	return &notification, nil
}

// MarkAsRead marks a notification as read
func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID uint, userID uint) error {
	result := s.db.WithContext(ctx).Model(&model.UserNotification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", true)

	if result.Error != nil {
		return fmt.Errorf("failed to mark notification as read: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("notification not found")
	}

	return nil
}

// MarkAllAsRead marks all notifications for a user as read
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uint) (int64, error) {
	result := s.db.WithContext(ctx).Model(&model.UserNotification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)

	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark all notifications as read: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// DeleteNotification deletes a notification
func (s *NotificationService) DeleteNotification(ctx context.Context, notificationID uint, userID uint) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&model.UserNotification{})

	if result.Error != nil {
		return fmt.Errorf("failed to delete notification: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("notification not found")
	}

	return nil
}

// DeleteAllNotifications deletes all notifications for a user
func (s *NotificationService) DeleteAllNotifications(ctx context.Context, userID uint) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.UserNotification{})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete all notifications: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// GetUnreadCount returns the count of unread notifications for a user
func (s *NotificationService) GetUnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64

	err := s.db.WithContext(ctx).Model(&model.UserNotification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error

	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	return count, nil
}

// CleanupOldNotifications removes notifications older than the specified duration
func (s *NotificationService) CleanupOldNotifications(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	result := s.db.WithContext(ctx).
		Where("created_at < ? AND read = ?", cutoff, true).
		Delete(&model.UserNotification{})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to cleanup old notifications: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		log.Printf("Cleaned up %d old notifications", result.RowsAffected)
	}

	return result.RowsAffected, nil
}

// NotifyPaymentCaptured records a success notification for a paid invoice
func (s *NotificationService) NotifyPaymentCaptured(ctx context.Context, invoice *model.Invoice) error {
	_, err := s.CreateNotification(ctx, CreateNotificationRequest{
		UserID:   invoice.UserID,
		Type:     model.NotificationTypeSuccess,
		Category: model.NotificationCategoryPayment,
		Title:    "Payment received",
		Message:  fmt.Sprintf("Your payment of %s was received and added to your balance.", FormatAmount(invoice.Amount, invoice.Currency)),
		Metadata: &model.NotificationMetadata{InvoiceID: invoice.ID},
	})
	return err
}

// NotifyPaymentFailed records an error notification for a failed invoice
func (s *NotificationService) NotifyPaymentFailed(ctx context.Context, invoice *model.Invoice, reason string) error {
	message := fmt.Sprintf("Your payment of %s could not be processed.", FormatAmount(invoice.Amount, invoice.Currency))
	if reason != "" {
		message = fmt.Sprintf("%s Reason: %s", message, reason)
	}

	_, err := s.CreateNotification(ctx, CreateNotificationRequest{
		UserID:   invoice.UserID,
		Type:     model.NotificationTypeError,
		Category: model.NotificationCategoryPayment,
		Title:    "Payment failed",
		Message:  message,
		Metadata: &model.NotificationMetadata{InvoiceID: invoice.ID},
	})
	return err
}

// NotifyImportFinished records the outcome of a bulk user import for the admin
// who ran it
func (s *NotificationService) NotifyImportFinished(ctx context.Context, adminID uint, total, added, skipped int) error {
	notificationType := model.NotificationTypeSuccess
	if skipped > 0 {
		notificationType = model.NotificationTypeWarning
	}

	_, err := s.CreateNotification(ctx, CreateNotificationRequest{
		UserID:   adminID,
		Type:     notificationType,
		Category: model.NotificationCategoryImport,
		Title:    "User import finished",
		Message:  fmt.Sprintf("Imported %d of %d users (%d skipped).", added, total, skipped),
		Metadata: &model.NotificationMetadata{
			TotalItems:   total,
			AddedItems:   added,
			SkippedItems: skipped,
			Progress:     100,
		},
	})
	return err
}

// NotifyRegistration records a course registration confirmation
func (s *NotificationService) NotifyRegistration(ctx context.Context, userID uint, course *model.Course) error {
	_, err := s.CreateNotification(ctx, CreateNotificationRequest{
		UserID:   userID,
		Type:     model.NotificationTypeInfo,
		Category: model.NotificationCategoryRegistration,
		Title:    "Course registration confirmed",
		Message:  fmt.Sprintf("You are registered for %s.", course.Name),
		Metadata: &model.NotificationMetadata{CourseID: course.ID, CourseName: course.Name},
	})
	return err
}

// FormatAmount renders a minor-unit amount as a human readable string
func FormatAmount(amount int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, amount/100, amount%100)
}
