package teamcart

import (
	"time"

	"github.com/google/uuid"
)

// Event is a domain event raised by the aggregate. Events accumulate on the
// cart's pending list and are drained by the application layer into the
// transactional outbox; they are never delivered synchronously.
type Event interface {
	EventID() string
	EventType() string
	TeamCartID() string
	OccurredAt() time.Time
}

// Event type names, used as outbox routing keys.
const (
	EventTypeUpdated          = "teamcart.updated"
	EventTypeLocked           = "teamcart.locked"
	EventTypePricingFinalized = "teamcart.pricing_finalized"
	EventTypePaymentCommitted = "teamcart.payment_committed"
	EventTypePaymentSettled   = "teamcart.payment_settled"
	EventTypeReadyToConfirm   = "teamcart.ready_to_confirm"
	EventTypeExpired          = "teamcart.expired"
	EventTypeConverted        = "teamcart.converted"
)

type eventBase struct {
	ID     string    `json:"id"`
	CartID string    `json:"cart_id"`
	At     time.Time `json:"at"`
}

func newEventBase(cartID string) eventBase {
	return eventBase{ID: uuid.NewString(), CartID: cartID, At: time.Now().UTC()}
}

func (e eventBase) EventID() string       { return e.ID }
func (e eventBase) TeamCartID() string    { return e.CartID }
func (e eventBase) OccurredAt() time.Time { return e.At }

// CartUpdated signals a composition change (member joined, item added,
// removed or requantified, readiness toggled). Consumed by the view model
// refresher only.
type CartUpdated struct {
	eventBase
}

func (CartUpdated) EventType() string { return EventTypeUpdated }

// CartLocked signals the Open -> Locked transition.
type CartLocked struct {
	eventBase
	LockedByUserID string `json:"locked_by_user_id"`
}

func (CartLocked) EventType() string { return EventTypeLocked }

// PricingFinalized signals the host finalized pricing at a new quote version.
type PricingFinalized struct {
	eventBase
	QuoteVersion int `json:"quote_version"`
}

func (PricingFinalized) EventType() string { return EventTypePricingFinalized }

// PaymentCommitted signals a member committed to a payment method.
type PaymentCommitted struct {
	eventBase
	UserID string        `json:"user_id"`
	Method PaymentMethod `json:"method"`
}

func (PaymentCommitted) EventType() string { return EventTypePaymentCommitted }

// PaymentSettled signals the provider confirmed or rejected an online payment.
type PaymentSettled struct {
	eventBase
	UserID    string        `json:"user_id"`
	Succeeded bool          `json:"succeeded"`
	Status    PaymentStatus `json:"status"`
}

func (PaymentSettled) EventType() string { return EventTypePaymentSettled }

// ReadyToConfirm signals every member left the pending payment state.
type ReadyToConfirm struct {
	eventBase
}

func (ReadyToConfirm) EventType() string { return EventTypeReadyToConfirm }

// Expired signals the sweeper (or an explicit call) abandoned the cart.
type Expired struct {
	eventBase
}

func (Expired) EventType() string { return EventTypeExpired }

// Converted signals the cart became a real order.
type Converted struct {
	eventBase
	OrderID string `json:"order_id"`
}

func (Converted) EventType() string { return EventTypeConverted }
