package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/schoolhub-io/schoolhub/model"
	"github.com/schoolhub-io/schoolhub/services/razorpay"
)

func TestHandleWebhook_RejectsBadSignature(t *testing.T) {
	svc := NewBillingService(nil, nil, "whsec_test")
	body := []byte(`{"entity":"event","event":"payment.captured"}`)

	err := svc.HandleWebhook(context.Background(), body, "0000000000000000000000000000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestHandleWebhook_MalformedBody(t *testing.T) {
	secret := "whsec_test"
	svc := NewBillingService(nil, nil, secret)
	body := []byte(`{"entity":`)

	err := svc.HandleWebhook(context.Background(), body, razorpay.ComputeSignature(body, secret))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode webhook event")
}

func TestHandleWebhook_IgnoresUnknownEvent(t *testing.T) {
	secret := "whsec_test"
	svc := NewBillingService(nil, nil, secret)
	body := []byte(`{"entity":"event","event":"refund.processed"}`)

	err := svc.HandleWebhook(context.Background(), body, razorpay.ComputeSignature(body, secret))
	assert.NoError(t, err)
}

func TestCreateOrder_RejectsNonPositiveAmount(t *testing.T) {
	svc := NewBillingService(nil, nil, "whsec_test")

	_, err := svc.CreateOrder(context.Background(), 1, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.CreateOrder(context.Background(), 1, 1, -500)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

// setupBillingTestDB connects to the integration test database and migrates
// the tables this suite touches.
func setupBillingTestDB(t *testing.T) *gorm.DB {
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

	err = db.AutoMigrate(&model.School{}, &model.User{}, &model.Invoice{}, &model.UserNotification{}, &model.AppSetting{})
	require.NoError(t, err)

	return db
}

func TestWebhookCaptureFlow_Integration(t *testing.T) {
	db := setupBillingTestDB(t)
	ctx := context.Background()
	secret := "whsec_integration"
	svc := NewBillingService(db, nil, secret)

	school := model.School{Name: "Webhook Test School", Code: fmt.Sprintf("WH%d", time.Now().UnixNano()%100000)}
	require.NoError(t, db.Create(&school).Error)

	user := model.User{
		SchoolID:  school.ID,
		IDN:       1,
		Username:  fmt.Sprintf("webhook.user.%d", time.Now().UnixNano()),
		FirstName: "Webhook",
		LastName:  "User",
		IsStudent: true,
		Credits:   100,
	}
	require.NoError(t, db.Create(&user).Error)

	invoice := model.Invoice{
		UserID:          user.ID,
		SchoolID:        school.ID,
		Amount:          50000,
		Currency:        "INR",
		Status:          model.InvoiceStatusCreated,
		Receipt:         fmt.Sprintf("rcpt_test_%d", time.Now().UnixNano()),
		ProviderOrderID: fmt.Sprintf("order_test_%d", time.Now().UnixNano()),
	}
	require.NoError(t, db.Create(&invoice).Error)

	t.Cleanup(func() {
		db.Unscoped().Where("user_id = ?", user.ID).Delete(&model.UserNotification{})
		db.Unscoped().Where("user_id = ?", user.ID).Delete(&model.Invoice{})
		db.Unscoped().Delete(&user)
		db.Unscoped().Delete(&school)
	})

	event := WebhookEvent{Entity: "event", Event: WebhookEventPaymentCaptured}
	event.Payload.Payment.Entity = razorpay.Payment{
		ID:      "pay_integration_1",
		OrderID: invoice.ProviderOrderID,
		Amount:  invoice.Amount,
		Status:  razorpay.PaymentStatusCaptured,
	}
	body, err := json.Marshal(event)
	require.NoError(t, err)

	err = svc.HandleWebhook(ctx, body, razorpay.ComputeSignature(body, secret))
	require.NoError(t, err)

	var updated model.Invoice
	require.NoError(t, db.First(&updated, invoice.ID).Error)
	assert.Equal(t, model.InvoiceStatusPaid, updated.Status)
	assert.Equal(t, "pay_integration_1", updated.ProviderPaymentID)
	require.NotNil(t, updated.PaidAt)

	var credited model.User
	require.NoError(t, db.First(&credited, user.ID).Error)
	assert.Equal(t, int64(100+50000), credited.Credits)

	// Redelivered webhook must not credit twice
	err = svc.HandleWebhook(ctx, body, razorpay.ComputeSignature(body, secret))
	require.NoError(t, err)

	require.NoError(t, db.First(&credited, user.ID).Error)
	assert.Equal(t, int64(100+50000), credited.Credits)
}

func TestExpireStaleInvoices_Integration(t *testing.T) {
	db := setupBillingTestDB(t)
	ctx := context.Background()
	svc := NewBillingService(db, nil, "whsec_integration")

	school := model.School{Name: "Expiry Test School", Code: fmt.Sprintf("EX%d", time.Now().UnixNano()%100000)}
	require.NoError(t, db.Create(&school).Error)

	user := model.User{
		SchoolID:  school.ID,
		IDN:       1,
		Username:  fmt.Sprintf("expiry.user.%d", time.Now().UnixNano()),
		FirstName: "Expiry",
		LastName:  "User",
		IsStudent: true,
	}
	require.NoError(t, db.Create(&user).Error)

	stale := model.Invoice{
		UserID:          user.ID,
		SchoolID:        school.ID,
		Amount:          10000,
		Status:          model.InvoiceStatusCreated,
		Receipt:         fmt.Sprintf("rcpt_stale_%d", time.Now().UnixNano()),
		ProviderOrderID: fmt.Sprintf("order_stale_%d", time.Now().UnixNano()),
	}
	require.NoError(t, db.Create(&stale).Error)

	fresh := model.Invoice{
		UserID:          user.ID,
		SchoolID:        school.ID,
		Amount:          10000,
		Status:          model.InvoiceStatusCreated,
		Receipt:         fmt.Sprintf("rcpt_fresh_%d", time.Now().UnixNano()),
		ProviderOrderID: fmt.Sprintf("order_fresh_%d", time.Now().UnixNano()),
	}
	require.NoError(t, db.Create(&fresh).Error)

	// Backdate the stale invoice past the default expiry window
	err := db.Model(&model.Invoice{}).Where("id = ?", stale.ID).
		UpdateColumn("created_at", time.Now().Add(-time.Duration(DefaultInvoiceExpiryMinutes+15)*time.Minute)).Error
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Unscoped().Where("user_id = ?", user.ID).Delete(&model.Invoice{})
		db.Unscoped().Delete(&user)
		db.Unscoped().Delete(&school)
	})

	expired, err := svc.ExpireStaleInvoices(ctx, time.Now())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, expired, int64(1))

	var staleAfter, freshAfter model.Invoice
	require.NoError(t, db.First(&staleAfter, stale.ID).Error)
	require.NoError(t, db.First(&freshAfter, fresh.ID).Error)
	assert.Equal(t, model.InvoiceStatusExpired, staleAfter.Status)
	assert.Equal(t, model.InvoiceStatusCreated, freshAfter.Status)
}
