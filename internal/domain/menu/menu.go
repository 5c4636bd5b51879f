// Package menu exposes the read-only slice of the catalog that the team
// cart flow needs: looking up an item to snapshot its price at add time.
// Catalog CRUD lives in a separate system.
package menu

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound indicates the menu item does not exist or is unavailable.
var ErrNotFound = errors.New("menu item not found")

// Item is a purchasable menu entry.
type Item struct {
	ID           string
	RestaurantID string
	CategoryID   string
	Name         string
	BasePrice    decimal.Decimal
	Available    bool
}

// Repository defines read access to menu items.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Item, error)
}
