package teamcart

// Status is the lifecycle state of a team cart.
type Status string

const (
	// StatusOpen allows members to join and manage their own items.
	StatusOpen Status = "open"
	// StatusLocked freezes item composition; payment commitments accumulate.
	StatusLocked Status = "locked"
	// StatusReadyToConfirm means every member has a settled payment commitment.
	StatusReadyToConfirm Status = "ready_to_confirm"
	// StatusConverted means the cart became a real order. Terminal.
	StatusConverted Status = "converted"
	// StatusExpired means the cart passed its deadline and was abandoned. Terminal.
	StatusExpired Status = "expired"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusConverted || s == StatusExpired
}

// Role distinguishes the cart creator from invited members.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// PaymentMethod is how a member settles their share of the cart.
type PaymentMethod string

const (
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodOnline         PaymentMethod = "online"
)

// PaymentStatus tracks the lifecycle of a single member's payment commitment.
type PaymentStatus string

const (
	PaymentStatusPending        PaymentStatus = "pending"
	PaymentStatusCommittedToCOD PaymentStatus = "committed_to_cod"
	PaymentStatusPaidOnline     PaymentStatus = "paid_online"
	PaymentStatusFailed         PaymentStatus = "failed"
)
