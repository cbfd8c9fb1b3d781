package model

import (
	"time"

	"gorm.io/gorm"
)

// Invoice statuses follow the provider's order lifecycle
const (
	InvoiceStatusCreated = "created"
	InvoiceStatusPaid    = "paid"
	InvoiceStatusFailed  = "failed"
	InvoiceStatusExpired = "expired"
)

// Invoice represents a credits top-up order placed with the billing provider.
// The provider order id comes back from order creation; the payment id and
// PaidAt are filled in by the signed webhook callback.
type Invoice struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	UserID            uint           `gorm:"not null;index" json:"user_id"`
	SchoolID          uint           `gorm:"not null;index" json:"school_id"`
	Amount            int64          `gorm:"not null" json:"amount"` // minor currency units
	Currency          string         `gorm:"type:varchar(10);default:'INR'" json:"currency"`
	Status            string         `gorm:"type:varchar(20);default:'created';index" json:"status"`
	Receipt           string         `gorm:"type:varchar(64);uniqueIndex" json:"receipt"`
	ProviderOrderID   string         `gorm:"type:varchar(100);uniqueIndex" json:"provider_order_id"`
	ProviderPaymentID string         `gorm:"type:varchar(100)" json:"provider_payment_id"`
	PaidAt            *time.Time     `json:"paid_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	School School `gorm:"foreignKey:SchoolID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for Invoice
func (Invoice) TableName() string {
	return "invoices"
}
