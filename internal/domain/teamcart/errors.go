package teamcart

import "github.com/go-faster/errors"

// Business-rule violations returned by aggregate methods. These are expected
// outcomes, mapped to client responses by the API layer; they never panic.
var (
	ErrCartNotFound      = errors.New("team cart not found")
	ErrCartNotOpen       = errors.New("cart is not open")
	ErrCartTerminal      = errors.New("cart is in a terminal state")
	ErrInvalidToken      = errors.New("invalid join token")
	ErrAlreadyMember     = errors.New("user is already a member")
	ErrHostAlreadyExists = errors.New("cart already has a host")
	ErrUserNotMember     = errors.New("user is not a member of this cart")
	ErrItemNotFound      = errors.New("item not found in cart")
	ErrNotItemOwner      = errors.New("item belongs to another member")
	ErrInvalidQuantity   = errors.New("quantity must be greater than 0")

	ErrOnlyHostCanLockCart                = errors.New("only the host can lock the cart")
	ErrCannotLockEmptyCart                = errors.New("cannot lock a cart with no items")
	ErrOnlyHostCanModifyFinancials        = errors.New("only the host can modify cart financials")
	ErrCanOnlyApplyFinancialsToLockedCart = errors.New("financials can only be applied to a locked cart")
	ErrNegativeTip                        = errors.New("tip amount cannot be negative")

	ErrCanOnlyPayOnLockedCart  = errors.New("payment is only possible on a locked cart")
	ErrPaymentAlreadyCommitted = errors.New("member has already committed a payment")
	ErrNoPendingPayment        = errors.New("member has no pending online payment")
	ErrStaleQuoteVersion       = errors.New("quote version does not match current pricing")

	ErrItemFromOtherRestaurant = errors.New("menu item belongs to a different restaurant")
	ErrCannotConvert           = errors.New("cart cannot be converted from its current status")

	// ErrVersionConflict is returned by the repository when an optimistic
	// concurrency save races another writer. Callers reload and retry, or
	// surface the conflict.
	ErrVersionConflict = errors.New("cart was modified concurrently")
)
