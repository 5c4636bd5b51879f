package payment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("whsec_test")

func signedBody(t *testing.T, evt WebhookEvent) (body []byte, signature string) {
	t.Helper()
	body, err := json.Marshal(evt)
	require.NoError(t, err)
	return body, Sign(testSecret, body)
}

func TestParseWebhook_Succeeded(t *testing.T) {
	body, sig := signedBody(t, WebhookEvent{
		ID:       "wh-1",
		Type:     WebhookPaymentSucceeded,
		CartID:   "cart-1",
		UserID:   "user-1",
		IntentID: "pi-1",
	})

	evt, err := ParseWebhook(testSecret, body, sig)
	require.NoError(t, err)
	assert.True(t, evt.Succeeded())
	assert.Equal(t, "cart-1", evt.CartID)
	assert.Equal(t, "user-1", evt.UserID)
}

func TestParseWebhook_Failed(t *testing.T) {
	body, sig := signedBody(t, WebhookEvent{
		ID:     "wh-1",
		Type:   WebhookPaymentFailed,
		CartID: "cart-1",
		UserID: "user-1",
	})

	evt, err := ParseWebhook(testSecret, body, sig)
	require.NoError(t, err)
	assert.False(t, evt.Succeeded())
}

func TestParseWebhook_BadSignature(t *testing.T) {
	body, _ := signedBody(t, WebhookEvent{
		Type: WebhookPaymentSucceeded, CartID: "cart-1", UserID: "user-1",
	})

	_, err := ParseWebhook(testSecret, body, "deadbeef")
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = ParseWebhook([]byte("other-secret"), body, Sign(testSecret, body))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestParseWebhook_TamperedBody(t *testing.T) {
	body, sig := signedBody(t, WebhookEvent{
		Type: WebhookPaymentSucceeded, CartID: "cart-1", UserID: "user-1",
	})
	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] = 'X'

	_, err := ParseWebhook(testSecret, tampered, sig)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestParseWebhook_UnknownEventType(t *testing.T) {
	body, sig := signedBody(t, WebhookEvent{
		Type: "payment.refunded", CartID: "cart-1", UserID: "user-1",
	})

	_, err := ParseWebhook(testSecret, body, sig)
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestParseWebhook_MalformedBody(t *testing.T) {
	body := []byte("not json")
	_, err := ParseWebhook(testSecret, body, Sign(testSecret, body))
	assert.ErrorIs(t, err, ErrMalformedBody)

	// Valid JSON but missing routing fields.
	body, sig := signedBody(t, WebhookEvent{Type: WebhookPaymentSucceeded})
	_, err = ParseWebhook(testSecret, body, sig)
	assert.ErrorIs(t, err, ErrMalformedBody)
}
