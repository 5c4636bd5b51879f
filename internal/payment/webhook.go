package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/go-faster/errors"
)

// Webhook event types the provider sends.
const (
	WebhookPaymentSucceeded = "payment.succeeded"
	WebhookPaymentFailed    = "payment.failed"
)

// Webhook verification errors.
var (
	ErrBadSignature  = errors.New("webhook signature mismatch")
	ErrUnknownEvent  = errors.New("unknown webhook event type")
	ErrMalformedBody = errors.New("malformed webhook body")
)

// WebhookEvent is the provider's notification payload.
type WebhookEvent struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	CartID   string `json:"cart_id"`
	UserID   string `json:"user_id"`
	IntentID string `json:"intent_id"`
}

// Succeeded reports whether the event settles the payment positively.
func (e WebhookEvent) Succeeded() bool { return e.Type == WebhookPaymentSucceeded }

// VerifySignature checks the HMAC-SHA256 hex signature the provider attaches
// to each webhook delivery.
func VerifySignature(secret, body []byte, signature string) error {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// Sign computes the signature for a webhook body. Exposed for tests and for
// the provider stub.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseWebhook verifies and decodes a webhook delivery.
func ParseWebhook(secret, body []byte, signature string) (WebhookEvent, error) {
	if err := VerifySignature(secret, body, signature); err != nil {
		return WebhookEvent{}, err
	}
	var evt WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return WebhookEvent{}, ErrMalformedBody
	}
	switch evt.Type {
	case WebhookPaymentSucceeded, WebhookPaymentFailed:
	default:
		return WebhookEvent{}, ErrUnknownEvent
	}
	if evt.CartID == "" || evt.UserID == "" {
		return WebhookEvent{}, ErrMalformedBody
	}
	return evt, nil
}
