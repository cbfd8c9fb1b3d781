package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/schoolhub-io/schoolhub/metrics"
	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/services/razorpay"
)

// Webhook events the billing service reacts to
const (
	WebhookEventPaymentCaptured = "payment.captured"
	WebhookEventPaymentFailed   = "payment.failed"
)

// Default expiry window for unpaid invoices (24 hours), overridable via the
// billing.invoice_expiry_minutes app setting
const DefaultInvoiceExpiryMinutes = 24 * 60

var (
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrInvoiceNotFound  = errors.New("invoice not found")
	ErrInvalidSignature = errors.New("webhook signature mismatch")
)

// BillingService opens provider orders for credit top-ups and reconciles
// webhook events back onto the matching invoices
type BillingService struct {
	db            *gorm.DB
	provider      *razorpay.Client
	webhookSecret string
	notifications *NotificationService
}

// NewBillingService creates a new billing service
func NewBillingService(db *gorm.DB, provider *razorpay.Client, webhookSecret string) *BillingService {
	return &BillingService{
		db:            db,
		provider:      provider,
		webhookSecret: webhookSecret,
		notifications: NewNotificationService(db),
	}
}

// CreateOrder opens a provider order that tops up the user's credit balance
// once paid. Amount is in the currency's minor unit.
func (s *BillingService) CreateOrder(ctx context.Context, userID, schoolID uint, amount int64) (*model.Invoice, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	currency := s.stringSetting(ctx, "billing.currency", "INR")
	receipt := fmt.Sprintf("rcpt_%d_%d", userID, time.Now().UnixNano())

	order, err := s.provider.CreateOrder(ctx, &razorpay.OrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Notes: map[string]string{
			"user_id":   strconv.FormatUint(uint64(userID), 10),
			"school_id": strconv.FormatUint(uint64(schoolID), 10),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open provider order: %w", err)
	}

	invoice := &model.Invoice{
		UserID:          userID,
		SchoolID:        schoolID,
		Amount:          amount,
		Currency:        currency,
		Status:          model.InvoiceStatusCreated,
		Receipt:         receipt,
		ProviderOrderID: order.ID,
	}

	if err := s.db.WithContext(ctx).Create(invoice).Error; err != nil {
		return nil, fmt.Errorf("failed to record invoice: %w", err)
	}

	return invoice, nil
}

// GetInvoice returns a user's invoice by id
func (s *BillingService) GetInvoice(ctx context.Context, invoiceID, userID uint) (*model.Invoice, error) {
	var invoice model.Invoice
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", invoiceID, userID).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to fetch invoice: %w", err)
	}
	return &invoice, nil
}

// ListUserInvoices returns a user's invoices, newest first
func (s *BillingService) ListUserInvoices(ctx context.Context, userID uint, limit, offset int) ([]model.Invoice, int64, error) {
	var invoices []model.Invoice
	var total int64

	query := s.db.WithContext(ctx).Model(&model.Invoice{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count invoices: %w", err)
	}

	if limit <= 0 {
		limit = 20
	}

	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&invoices).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch invoices: %w", err)
	}

	return invoices, total, nil
}

// WebhookEvent is the provider's event envelope
type WebhookEvent struct {
	Entity  string `json:"entity"`
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity razorpay.Payment `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

// HandleWebhook verifies the provider signature against the raw body and
// applies the event. Unknown events are acknowledged and ignored; redelivered
// events are idempotent.
func (s *BillingService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !razorpay.VerifyWebhookSignature(body, signature, s.webhookSecret) {
		metrics.PaymentWebhooksTotal.WithLabelValues("unknown", "rejected").Inc()
		return ErrInvalidSignature
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		metrics.PaymentWebhooksTotal.WithLabelValues("unknown", "malformed").Inc()
		return fmt.Errorf("failed to decode webhook event: %w", err)
	}

	payment := event.Payload.Payment.Entity

	switch event.Event {
	case WebhookEventPaymentCaptured:
		if err := s.applyCapturedPayment(ctx, &payment); err != nil {
			metrics.PaymentWebhooksTotal.WithLabelValues(event.Event, "error").Inc()
			return err
		}
		metrics.PaymentWebhooksTotal.WithLabelValues(event.Event, "applied").Inc()
		return nil

	case WebhookEventPaymentFailed:
		if err := s.applyFailedPayment(ctx, &payment); err != nil {
			metrics.PaymentWebhooksTotal.WithLabelValues(event.Event, "error").Inc()
			return err
		}
		metrics.PaymentWebhooksTotal.WithLabelValues(event.Event, "applied").Inc()
		return nil

	default:
		metrics.PaymentWebhooksTotal.WithLabelValues(event.Event, "ignored").Inc()
		return nil
	}
}

// applyCapturedPayment marks the invoice paid and credits the user's balance
// in one transaction. A webhook redelivered for an already-paid invoice is a
// no-op.
func (s *BillingService) applyCapturedPayment(ctx context.Context, payment *razorpay.Payment) error {
	var invoice model.Invoice
	var alreadyPaid bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("provider_order_id = ?", payment.OrderID).First(&invoice).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvoiceNotFound
			}
			return fmt.Errorf("failed to fetch invoice for order %s: %w", payment.OrderID, err)
		}

		if invoice.Status == model.InvoiceStatusPaid {
			alreadyPaid = true
			return nil
		}

		now := time.Now()
		updates := map[string]interface{}{
			"status":              model.InvoiceStatusPaid,
			"provider_payment_id": payment.ID,
			"paid_at":             now,
		}
		if err := tx.Model(&invoice).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to mark invoice paid: %w", err)
		}

		err := tx.Model(&model.User{}).
			Where("id = ?", invoice.UserID).
			UpdateColumn("credits", gorm.Expr("credits + ?", invoice.Amount)).Error
		if err != nil {
			return fmt.Errorf("failed to credit user %d: %w", invoice.UserID, err)
		}

		invoice.Status = model.InvoiceStatusPaid
		invoice.ProviderPaymentID = payment.ID
		invoice.PaidAt = &now
		return nil
	})
	if err != nil {
		return err
	}

	if alreadyPaid {
		return nil
	}

	if err := s.notifications.NotifyPaymentCaptured(ctx, &invoice); err != nil {
		log.Printf("Failed to notify user %d about payment %s: %v", invoice.UserID, payment.ID, err)
	}

	return nil
}

// applyFailedPayment marks the invoice failed. Paid invoices are never
// downgraded; a late failure event for a captured payment is ignored.
func (s *BillingService) applyFailedPayment(ctx context.Context, payment *razorpay.Payment) error {
	var invoice model.Invoice

	err := s.db.WithContext(ctx).Where("provider_order_id = ?", payment.OrderID).First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvoiceNotFound
		}
		return fmt.Errorf("failed to fetch invoice for order %s: %w", payment.OrderID, err)
	}

	if invoice.Status != model.InvoiceStatusCreated {
		return nil
	}

	updates := map[string]interface{}{
		"status":              model.InvoiceStatusFailed,
		"provider_payment_id": payment.ID,
	}
	if err := s.db.WithContext(ctx).Model(&invoice).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to mark invoice failed: %w", err)
	}

	invoice.Status = model.InvoiceStatusFailed
	if err := s.notifications.NotifyPaymentFailed(ctx, &invoice, payment.ErrorDescription); err != nil {
		log.Printf("Failed to notify user %d about failed payment %s: %v", invoice.UserID, payment.ID, err)
	}

	return nil
}

// ExpireStaleInvoices moves invoices that stayed unpaid past the configured
// expiry window into the expired status. Returns the number of invoices
// expired.
func (s *BillingService) ExpireStaleInvoices(ctx context.Context, now time.Time) (int64, error) {
	expiryMinutes := s.intSetting(ctx, "billing.invoice_expiry_minutes", DefaultInvoiceExpiryMinutes)
	cutoff := now.Add(-time.Duration(expiryMinutes) * time.Minute)

	result := s.db.WithContext(ctx).Model(&model.Invoice{}).
		Where("status = ? AND created_at < ?", model.InvoiceStatusCreated, cutoff).
		Update("status", model.InvoiceStatusExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to expire invoices: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		log.Printf("Expired %d unpaid invoices older than %d minutes", result.RowsAffected, expiryMinutes)
	}

	return result.RowsAffected, nil
}

// stringSetting reads an app setting, falling back to a default when the key
// is absent
func (s *BillingService) stringSetting(ctx context.Context, key, fallback string) string {
	var setting model.AppSetting
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		return fallback
	}
	if setting.Value == "" {
		return fallback
	}
	return setting.Value
}

// intSetting reads an integer app setting, falling back on absence or a
// non-numeric value
func (s *BillingService) intSetting(ctx context.Context, key string, fallback int) int {
	raw := s.stringSetting(ctx, key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
