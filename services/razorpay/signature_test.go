package razorpay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"entity":"event","event":"payment.captured"}`)
	secret := "whsec_test_123"
	signature := "afab959aab684b042f79999eee67e3974f7ed3628acb0aeac7d6fce6210d23fd"

	assert.True(t, VerifyWebhookSignature(body, signature, secret))
	assert.False(t, VerifyWebhookSignature(body, signature, "wrong-secret"))
	assert.False(t, VerifyWebhookSignature([]byte(`{"tampered":true}`), signature, secret))
	assert.False(t, VerifyWebhookSignature(body, "", secret))
}

func TestVerifyPaymentSignature(t *testing.T) {
	orderID := "order_MkzqhE7jMCmF2p"
	paymentID := "pay_MkzrJbQ9vRyOSW"
	secret := "secret_abc"
	signature := "d77f14837ba058dd4b73c7f1191319e4429f7cbd103b7a43b167b75259ee0595"

	assert.True(t, VerifyPaymentSignature(orderID, paymentID, signature, secret))
	assert.False(t, VerifyPaymentSignature(paymentID, orderID, signature, secret))
	assert.False(t, VerifyPaymentSignature(orderID, paymentID, signature, "other"))
}

func TestComputeSignatureRoundTrip(t *testing.T) {
	body := []byte("any payload at all")
	secret := "s3cr3t"

	sig := ComputeSignature(body, secret)
	assert.Len(t, sig, 64)
	assert.True(t, VerifyWebhookSignature(body, sig, secret))
}
