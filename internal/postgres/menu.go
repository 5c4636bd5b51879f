package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feastly/teamcart/internal/domain/menu"
)

var _ menu.Repository = (*MenuRepository)(nil)

// MenuRepository implements the read-only menu lookup used for price
// snapshots at add-item time.
type MenuRepository struct {
	pool *pgxpool.Pool
}

// NewMenuRepository returns a MenuRepository on the given pool.
func NewMenuRepository(pool *pgxpool.Pool) *MenuRepository {
	return &MenuRepository{pool: pool}
}

// GetByID loads one menu item. Returns menu.ErrNotFound when absent.
func (r *MenuRepository) GetByID(ctx context.Context, id string) (*menu.Item, error) {
	var item menu.Item
	err := db(ctx, r.pool).QueryRow(ctx, `
		SELECT id, restaurant_id, category_id, name, base_price, available
		FROM menu_items
		WHERE id = $1`, id,
	).Scan(&item.ID, &item.RestaurantID, &item.CategoryID, &item.Name, &item.BasePrice, &item.Available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, menu.ErrNotFound
		}
		return nil, errors.Wrapf(err, "load menu item %q", id)
	}
	return &item, nil
}
