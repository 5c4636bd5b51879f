// Package payment integrates the external payment provider: creating
// payment intents for online commitments and reconciling the provider's
// webhook verdicts back into the cart aggregate.
package payment

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IntentRequest asks the provider to prepare a payment for one member's
// share of one cart.
type IntentRequest struct {
	CartID string
	UserID string
	Amount decimal.Decimal
}

// Intent is the provider's answer: an opaque id for reconciliation and a
// token the client hands to the provider's SDK.
type Intent struct {
	IntentID    string
	ClientToken string
}

// Provider is the payment-provider contract. Only the result shape matters
// here; the wire protocol is the provider adapter's problem.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

// StubProvider mints local intents without calling anyone. Used in
// development and tests; the real adapter talks to the PSP.
type StubProvider struct{}

func (StubProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	intent := Intent{
		IntentID:    uuid.NewString(),
		ClientToken: "tok_" + uuid.NewString(),
	}
	zctx.From(ctx).Info("Created stub payment intent",
		zap.String("cart_id", req.CartID),
		zap.String("user_id", req.UserID),
		zap.String("intent_id", intent.IntentID),
	)
	return intent, nil
}
