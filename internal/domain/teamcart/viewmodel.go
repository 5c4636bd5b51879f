package teamcart

import (
	"time"

	"github.com/shopspring/decimal"
)

// ViewModel is the denormalized cart snapshot served to real-time clients.
// Version is monotonic per cart; clients use it purely as a staleness
// signal and re-fetch on every push, never trusting pushed data as final.
type ViewModel struct {
	CartID       string          `json:"cart_id"`
	RestaurantID string          `json:"restaurant_id"`
	Status       Status          `json:"status"`
	Members      []MemberView    `json:"members"`
	Items        []ItemView      `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	TipAmount    decimal.Decimal `json:"tip_amount"`
	Total        decimal.Decimal `json:"total"`
	QuoteVersion int             `json:"quote_version"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Version      int64           `json:"version"`
}

// MemberView is a member row in the view model.
type MemberView struct {
	UserID        string        `json:"user_id"`
	DisplayName   string        `json:"display_name"`
	Role          Role          `json:"role"`
	IsReady       bool          `json:"is_ready"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
}

// ItemView is an item row in the view model.
type ItemView struct {
	ID            string          `json:"id"`
	AddedByUserID string          `json:"added_by_user_id"`
	MenuItemID    string          `json:"menu_item_id"`
	Name          string          `json:"name"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	LineTotal     decimal.Decimal `json:"line_total"`
}

// BuildViewModel recomputes the full view model from the aggregate. Always a
// complete rebuild; incremental patching is how read models drift.
func BuildViewModel(c *TeamCart) *ViewModel {
	vm := &ViewModel{
		CartID:       c.ID,
		RestaurantID: c.RestaurantID,
		Status:       c.Status,
		Members:      make([]MemberView, 0, len(c.Members)),
		Items:        make([]ItemView, 0, len(c.Items)),
		Subtotal:     c.Subtotal(),
		TipAmount:    c.TipAmount,
		QuoteVersion: c.QuoteVersion,
		ExpiresAt:    c.ExpiresAt,
		Version:      c.Version,
	}
	vm.Total = vm.Subtotal.Add(c.TipAmount)

	for _, m := range c.Members {
		mv := MemberView{
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
			Role:        m.Role,
			IsReady:     m.IsReady,
		}
		if p := c.payment(m.UserID); p != nil {
			mv.PaymentStatus = p.Status
		}
		vm.Members = append(vm.Members, mv)
	}
	for _, it := range c.Items {
		vm.Items = append(vm.Items, ItemView{
			ID:            it.ID,
			AddedByUserID: it.AddedByUserID,
			MenuItemID:    it.MenuItemID,
			Name:          it.Name,
			Quantity:      it.Quantity,
			UnitPrice:     it.BasePriceAtAdd,
			LineTotal:     it.LineTotal(),
		})
	}
	return vm
}
