package payment

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/schoolhub-io/schoolhub/services"
	"github.com/schoolhub-io/schoolhub/services/razorpay"
	"github.com/schoolhub-io/schoolhub/utils/middleware"
	"github.com/schoolhub-io/schoolhub/utils/response"
	"gorm.io/gorm"
)

// PaymentHandler handles credit top-up orders and the provider's webhook
type PaymentHandler struct {
	db       *gorm.DB
	billing  *services.BillingService
	provider *razorpay.Client
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(db *gorm.DB, provider *razorpay.Client, webhookSecret string) *PaymentHandler {
	return &PaymentHandler{
		db:       db,
		billing:  services.NewBillingService(db, provider, webhookSecret),
		provider: provider,
	}
}

// CreateOrderRequest represents the request body for opening a top-up order.
// Amount is in the currency's minor unit (paise for INR).
type CreateOrderRequest struct {
	Amount int64 `json:"amount" validate:"required,min=1"`
}

// CreateOrder handles POST /api/v1/payments/orders.
// The response carries everything the frontend checkout needs.
func (h *PaymentHandler) CreateOrder(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	invoice, err := h.billing.CreateOrder(c.Context(), user.ID, user.SchoolID, req.Amount)
	if err != nil {
		if errors.Is(err, services.ErrInvalidAmount) {
			return response.BadRequest(c, "Amount must be a positive number of minor currency units")
		}
		return response.InternalServerError(c, "Failed to create payment order")
	}

	return response.Created(c, fiber.Map{
		"invoice_id": invoice.ID,
		"order_id":   invoice.ProviderOrderID,
		"amount":     invoice.Amount,
		"currency":   invoice.Currency,
		"receipt":    invoice.Receipt,
		"key_id":     h.provider.KeyID(),
	})
}

// MyInvoices handles GET /api/v1/payments/mine
func (h *PaymentHandler) MyInvoices(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	if page < 1 {
		page = 1
	}

	offset := (page - 1) * limit
	invoices, total, err := h.billing.ListUserInvoices(c.Context(), userID, limit, offset)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch invoices")
	}

	pagination := response.CalculatePagination(page, limit, total)
	return response.Paginated(c, invoices, pagination)
}

// Webhook handles POST /api/v1/payments/webhook.
// The provider signs the raw body; verification happens before any decoding,
// so this route must see the request unmodified and unauthenticated.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	signature := c.Get("X-Razorpay-Signature")
	if signature == "" {
		return response.BadRequest(c, "Missing webhook signature")
	}

	body := c.Body()

	if err := h.billing.HandleWebhook(c.Context(), body, signature); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidSignature):
			return response.Unauthorized(c, "Invalid webhook signature")
		case errors.Is(err, services.ErrInvoiceNotFound):
			// Acknowledge orders we have no invoice for so the provider
			// stops redelivering them
			return response.Success(c, fiber.Map{"status": "ignored"})
		default:
			return response.InternalServerError(c, "Failed to process webhook")
		}
	}

	return response.Success(c, fiber.Map{"status": "ok"})
}
