package teamcart

import (
	"time"

	"github.com/shopspring/decimal"
)

// Member is a participant in a team cart. Exactly one member per cart has
// RoleHost, fixed at creation.
type Member struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	IsReady     bool      `json:"is_ready"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Item is a single cart line, owned by the member who added it. The base
// price is snapshotted at add time so later menu edits never reprice an
// in-progress cart.
type Item struct {
	ID             string          `json:"id"`
	AddedByUserID  string          `json:"added_by_user_id"`
	MenuItemID     string          `json:"menu_item_id"`
	CategoryID     string          `json:"category_id"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	BasePriceAtAdd decimal.Decimal `json:"base_price_at_add"`
	AddedAt        time.Time       `json:"added_at"`
}

// LineTotal is the snapshotted price multiplied by the quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.BasePriceAtAdd.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// MemberPayment records one member's commitment to a payment method.
// At most one per member per cart.
type MemberPayment struct {
	UserID      string          `json:"user_id"`
	Method      PaymentMethod   `json:"method"`
	Status      PaymentStatus   `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	CommittedAt time.Time       `json:"committed_at"`
	SettledAt   *time.Time      `json:"settled_at,omitempty"`
}
