package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// ComputeSignature returns the hex-encoded HMAC-SHA256 of payload under secret
func ComputeSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header value against
// the raw webhook body. Comparison is constant time.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	expected := ComputeSignature(body, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyPaymentSignature checks the checkout callback signature for an
// order/payment pair, signed as "<order_id>|<payment_id>"
func VerifyPaymentSignature(orderID, paymentID, signature, secret string) bool {
	payload := orderID + "|" + paymentID
	return VerifyWebhookSignature([]byte(payload), signature, secret)
}
