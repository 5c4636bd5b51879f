package teamcart

import (
	"crypto/subtle"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TeamCart is the aggregate root for a collaborative order. All invariants
// are enforced here; callers load it, invoke one method, and persist it with
// optimistic concurrency. Business-rule violations are returned as named
// error values, never panics.
type TeamCart struct {
	ID           string
	RestaurantID string
	Status       Status
	Members      []Member
	Items        []Item
	TipAmount    decimal.Decimal
	// QuoteVersion is a monotonic counter bumped by FinalizePricing.
	// Zero means no quote has been computed yet; callers fall back to the
	// naive items subtotal.
	QuoteVersion int
	Payments     []MemberPayment
	ShareToken   string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Version is the persisted optimistic-concurrency token. The repository
	// bumps it on every successful save.
	Version int64

	pending []Event
}

// ItemSnapshot carries the menu data captured at add time.
type ItemSnapshot struct {
	MenuItemID   string
	CategoryID   string
	RestaurantID string
	Name         string
	BasePrice    decimal.Decimal
}

// New creates an Open cart with the creator as its sole Host member, a fresh
// share token, and a deadline ttl from now.
func New(hostUserID, hostDisplayName, restaurantID string, ttl time.Duration) *TeamCart {
	now := time.Now().UTC()
	return &TeamCart{
		ID:           uuid.NewString(),
		RestaurantID: restaurantID,
		Status:       StatusOpen,
		Members: []Member{{
			UserID:      hostUserID,
			DisplayName: hostDisplayName,
			Role:        RoleHost,
			JoinedAt:    now,
		}},
		TipAmount:  decimal.Zero,
		ShareToken: uuid.NewString(),
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ValidateJoinToken compares the presented token against the cart's share
// token. Pure check, no mutation.
func (c *TeamCart) ValidateJoinToken(token string) error {
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(c.ShareToken)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// Host returns the cart's host member.
func (c *TeamCart) Host() Member {
	for _, m := range c.Members {
		if m.Role == RoleHost {
			return m
		}
	}
	// A cart without a host cannot be constructed through New; this is
	// unreachable for well-formed aggregates.
	return Member{}
}

func (c *TeamCart) member(userID string) *Member {
	for i := range c.Members {
		if c.Members[i].UserID == userID {
			return &c.Members[i]
		}
	}
	return nil
}

func (c *TeamCart) isHost(userID string) bool {
	m := c.member(userID)
	return m != nil && m.Role == RoleHost
}

func (c *TeamCart) payment(userID string) *MemberPayment {
	for i := range c.Payments {
		if c.Payments[i].UserID == userID {
			return &c.Payments[i]
		}
	}
	return nil
}

// AddMember joins a user to an open cart. Token validation is a separate
// prior step; by the time this runs the caller has already presented a valid
// share token. The host seat is fixed at creation, so only guests can join.
func (c *TeamCart) AddMember(userID, displayName string, role Role) error {
	if c.Status != StatusOpen {
		return ErrCartNotOpen
	}
	if role == RoleHost {
		return ErrHostAlreadyExists
	}
	if c.member(userID) != nil {
		return ErrAlreadyMember
	}
	c.Members = append(c.Members, Member{
		UserID:      userID,
		DisplayName: displayName,
		Role:        role,
		JoinedAt:    time.Now().UTC(),
	})
	c.touch()
	c.raise(CartUpdated{newEventBase(c.ID)})
	return nil
}

// AddItem appends a line owned by userID, snapshotting the menu price.
func (c *TeamCart) AddItem(userID string, snap ItemSnapshot, quantity int) (*Item, error) {
	if c.Status != StatusOpen {
		return nil, ErrCartNotOpen
	}
	if c.member(userID) == nil {
		return nil, ErrUserNotMember
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if snap.RestaurantID != c.RestaurantID {
		return nil, ErrItemFromOtherRestaurant
	}
	item := Item{
		ID:             uuid.NewString(),
		AddedByUserID:  userID,
		MenuItemID:     snap.MenuItemID,
		CategoryID:     snap.CategoryID,
		Name:           snap.Name,
		Quantity:       quantity,
		BasePriceAtAdd: snap.BasePrice,
		AddedAt:        time.Now().UTC(),
	}
	c.Items = append(c.Items, item)
	c.touch()
	c.raise(CartUpdated{newEventBase(c.ID)})
	return &item, nil
}

// RemoveItem deletes a line. Ownership, not role, gates the mutation: a
// guest freely manages their own lines, and nobody else's.
func (c *TeamCart) RemoveItem(userID, itemID string) error {
	if c.Status != StatusOpen {
		return ErrCartNotOpen
	}
	for i := range c.Items {
		if c.Items[i].ID != itemID {
			continue
		}
		if c.Items[i].AddedByUserID != userID {
			return ErrNotItemOwner
		}
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		c.touch()
		c.raise(CartUpdated{newEventBase(c.ID)})
		return nil
	}
	return ErrItemNotFound
}

// UpdateItemQuantity changes the quantity of a line the caller owns.
func (c *TeamCart) UpdateItemQuantity(userID, itemID string, quantity int) error {
	if c.Status != StatusOpen {
		return ErrCartNotOpen
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	for i := range c.Items {
		if c.Items[i].ID != itemID {
			continue
		}
		if c.Items[i].AddedByUserID != userID {
			return ErrNotItemOwner
		}
		c.Items[i].Quantity = quantity
		c.touch()
		c.raise(CartUpdated{newEventBase(c.ID)})
		return nil
	}
	return ErrItemNotFound
}

// LockForPayment freezes item composition so payment can proceed.
func (c *TeamCart) LockForPayment(userID string) error {
	if !c.isHost(userID) {
		return ErrOnlyHostCanLockCart
	}
	if c.Status != StatusOpen {
		return ErrCartNotOpen
	}
	if len(c.Items) == 0 {
		return ErrCannotLockEmptyCart
	}
	c.Status = StatusLocked
	c.touch()
	c.raise(CartLocked{eventBase: newEventBase(c.ID), LockedByUserID: userID})
	return nil
}

// ApplyTip sets the cart-level tip. Host-only, locked carts only.
func (c *TeamCart) ApplyTip(userID string, amount decimal.Decimal) error {
	if !c.isHost(userID) {
		return ErrOnlyHostCanModifyFinancials
	}
	if c.Status != StatusLocked {
		return ErrCanOnlyApplyFinancialsToLockedCart
	}
	if amount.IsNegative() {
		return ErrNegativeTip
	}
	c.TipAmount = amount
	c.touch()
	c.raise(CartUpdated{newEventBase(c.ID)})
	return nil
}

// FinalizePricing stamps a new quote version. Members must commit payments
// against this exact version.
func (c *TeamCart) FinalizePricing(userID string) error {
	if !c.isHost(userID) {
		return ErrOnlyHostCanModifyFinancials
	}
	if c.Status != StatusLocked {
		return ErrCanOnlyApplyFinancialsToLockedCart
	}
	c.QuoteVersion++
	c.touch()
	c.raise(PricingFinalized{eventBase: newEventBase(c.ID), QuoteVersion: c.QuoteVersion})
	return nil
}

// checkPayable validates the shared preconditions of every payment commit.
func (c *TeamCart) checkPayable(userID string, quoteVersion int) error {
	if c.Status != StatusLocked {
		return ErrCanOnlyPayOnLockedCart
	}
	if c.member(userID) == nil {
		return ErrUserNotMember
	}
	if c.payment(userID) != nil {
		return ErrPaymentAlreadyCommitted
	}
	// Strict fail on a stale quote: the client must re-fetch and re-confirm
	// the current price, never silently pay a different amount.
	if quoteVersion != c.QuoteVersion {
		return ErrStaleQuoteVersion
	}
	return nil
}

// CanCommitPayment reports whether userID could commit a payment right now
// against quoteVersion. Used as a precheck before creating a provider
// intent; the authoritative check reruns inside the transaction.
func (c *TeamCart) CanCommitPayment(userID string, quoteVersion int) error {
	return c.checkPayable(userID, quoteVersion)
}

// CommitToCashOnDelivery records a member's commitment to pay their share in
// cash at the door. One commitment per member, ever.
func (c *TeamCart) CommitToCashOnDelivery(userID string, amount decimal.Decimal, quoteVersion int) error {
	if err := c.checkPayable(userID, quoteVersion); err != nil {
		return err
	}
	c.Payments = append(c.Payments, MemberPayment{
		UserID:      userID,
		Method:      PaymentMethodCashOnDelivery,
		Status:      PaymentStatusCommittedToCOD,
		Amount:      amount,
		CommittedAt: time.Now().UTC(),
	})
	c.touch()
	c.raise(PaymentCommitted{eventBase: newEventBase(c.ID), UserID: userID, Method: PaymentMethodCashOnDelivery})
	c.checkAllCommitted()
	return nil
}

// InitiateOnlinePayment records a pending online commitment. The provider
// webhook settles it later via SettleOnlinePayment.
func (c *TeamCart) InitiateOnlinePayment(userID string, amount decimal.Decimal, quoteVersion int) error {
	if err := c.checkPayable(userID, quoteVersion); err != nil {
		return err
	}
	c.Payments = append(c.Payments, MemberPayment{
		UserID:      userID,
		Method:      PaymentMethodOnline,
		Status:      PaymentStatusPending,
		Amount:      amount,
		CommittedAt: time.Now().UTC(),
	})
	c.touch()
	c.raise(PaymentCommitted{eventBase: newEventBase(c.ID), UserID: userID, Method: PaymentMethodOnline})
	return nil
}

// SettleOnlinePayment applies the provider's success/failure verdict to a
// pending online payment. A failed payment is removed so the member can
// commit again.
func (c *TeamCart) SettleOnlinePayment(userID string, succeeded bool) error {
	if c.Status != StatusLocked {
		return ErrCanOnlyPayOnLockedCart
	}
	p := c.payment(userID)
	if p == nil || p.Method != PaymentMethodOnline || p.Status != PaymentStatusPending {
		return ErrNoPendingPayment
	}
	now := time.Now().UTC()
	var status PaymentStatus
	if succeeded {
		p.Status = PaymentStatusPaidOnline
		p.SettledAt = &now
		status = PaymentStatusPaidOnline
	} else {
		status = PaymentStatusFailed
		for i := range c.Payments {
			if c.Payments[i].UserID == userID {
				c.Payments = append(c.Payments[:i], c.Payments[i+1:]...)
				break
			}
		}
	}
	c.touch()
	c.raise(PaymentSettled{eventBase: newEventBase(c.ID), UserID: userID, Succeeded: succeeded, Status: status})
	if succeeded {
		c.checkAllCommitted()
	}
	return nil
}

// checkAllCommitted self-transitions to ReadyToConfirm once every member
// holds a non-pending payment.
func (c *TeamCart) checkAllCommitted() {
	if c.Status != StatusLocked {
		return
	}
	for _, m := range c.Members {
		p := c.payment(m.UserID)
		if p == nil || p.Status == PaymentStatusPending {
			return
		}
	}
	c.Status = StatusReadyToConfirm
	c.raise(ReadyToConfirm{newEventBase(c.ID)})
}

// MarkAsExpired abandons the cart. Idempotent: calling it on a terminal cart
// is a successful no-op and raises no duplicate event. Callable from any
// non-terminal state, including mid-Locked.
func (c *TeamCart) MarkAsExpired() error {
	if c.Status.IsTerminal() {
		return nil
	}
	c.Status = StatusExpired
	c.touch()
	c.raise(Expired{newEventBase(c.ID)})
	return nil
}

// MarkAsConverted records that the external conversion process turned this
// cart into a real order.
func (c *TeamCart) MarkAsConverted(orderID string) error {
	if c.Status != StatusReadyToConfirm && c.Status != StatusLocked {
		return ErrCannotConvert
	}
	c.Status = StatusConverted
	c.touch()
	c.raise(Converted{eventBase: newEventBase(c.ID), OrderID: orderID})
	return nil
}

// SetMemberReady toggles a member's informational readiness flag. It does
// not gate any transition; "I've reviewed the cart" is deliberately separate
// from "I've paid".
func (c *TeamCart) SetMemberReady(userID string, ready bool) error {
	if c.Status.IsTerminal() {
		return ErrCartTerminal
	}
	m := c.member(userID)
	if m == nil {
		return ErrUserNotMember
	}
	m.IsReady = ready
	c.touch()
	c.raise(CartUpdated{newEventBase(c.ID)})
	return nil
}

// Subtotal sums every line total.
func (c *TeamCart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// MemberSubtotal sums the line totals owned by one member.
func (c *TeamCart) MemberSubtotal(userID string) decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		if it.AddedByUserID == userID {
			total = total.Add(it.LineTotal())
		}
	}
	return total
}

// DrainEvents returns the pending events and clears the list. Called by the
// application layer inside the same transaction that persists the cart.
func (c *TeamCart) DrainEvents() []Event {
	evts := c.pending
	c.pending = nil
	return evts
}

func (c *TeamCart) raise(e Event) {
	c.pending = append(c.pending, e)
}

func (c *TeamCart) touch() {
	c.UpdatedAt = time.Now().UTC()
}
