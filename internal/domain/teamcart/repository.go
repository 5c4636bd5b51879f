package teamcart

import (
	"context"
	"time"
)

// Repository defines persistence operations for team carts. Update enforces
// optimistic concurrency on TeamCart.Version and returns ErrVersionConflict
// when the persisted row moved underneath the caller.
type Repository interface {
	GetByID(ctx context.Context, id string) (*TeamCart, error)
	Create(ctx context.Context, cart *TeamCart) error
	Update(ctx context.Context, cart *TeamCart) error
	// GetExpiringCarts returns up to batchSize non-terminal carts whose
	// deadline passed before cutoff.
	GetExpiringCarts(ctx context.Context, cutoff time.Time, batchSize int) ([]*TeamCart, error)
}

// ViewStore is the fast, best-effort mirror of cart state consumed by
// real-time clients. It is always rebuilt in full, never patched, and may
// momentarily lag the relational source of truth.
type ViewStore interface {
	// GetViewModel returns (nil, nil) on a cache miss.
	GetViewModel(ctx context.Context, cartID string) (*ViewModel, error)
	SetViewModel(ctx context.Context, vm *ViewModel) error
	DeleteViewModel(ctx context.Context, cartID string) error
}
