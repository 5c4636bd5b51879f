package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feastly/teamcart/internal/domain/teamcart"
)

var _ teamcart.Repository = (*TeamCartRepository)(nil)

// TeamCartRepository implements teamcart.Repository backed by PostgreSQL.
// Members, items, and payments are serialized to JSONB; the version column
// is the optimistic-concurrency token.
type TeamCartRepository struct {
	pool *pgxpool.Pool
}

// NewTeamCartRepository returns a TeamCartRepository on the given pool.
func NewTeamCartRepository(pool *pgxpool.Pool) *TeamCartRepository {
	return &TeamCartRepository{pool: pool}
}

const cartColumns = `id, restaurant_id, status, members, items, payments,
	tip_amount, quote_version, share_token, expires_at, created_at, updated_at, version`

// Create inserts a new cart at version 1.
func (r *TeamCartRepository) Create(ctx context.Context, c *teamcart.TeamCart) error {
	members, items, payments, err := marshalCollections(c)
	if err != nil {
		return err
	}

	c.Version = 1
	_, err = db(ctx, r.pool).Exec(ctx, `
		INSERT INTO team_carts (`+cartColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.RestaurantID, string(c.Status), members, items, payments,
		c.TipAmount, c.QuoteVersion, c.ShareToken, c.ExpiresAt, c.CreatedAt, c.UpdatedAt, c.Version,
	)
	if err != nil {
		return errors.Wrapf(err, "insert cart %q", c.ID)
	}
	return nil
}

// GetByID loads one cart. Returns teamcart.ErrCartNotFound when absent.
func (r *TeamCartRepository) GetByID(ctx context.Context, id string) (*teamcart.TeamCart, error) {
	row := db(ctx, r.pool).QueryRow(ctx, `
		SELECT `+cartColumns+`
		FROM team_carts
		WHERE id = $1`, id)

	cart, err := scanCart(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, teamcart.ErrCartNotFound
		}
		return nil, errors.Wrapf(err, "load cart %q", id)
	}
	return cart, nil
}

// Update persists the cart guarded by its version. Zero rows affected means
// another writer moved the row first; the caller reloads and retries or
// surfaces the conflict.
func (r *TeamCartRepository) Update(ctx context.Context, c *teamcart.TeamCart) error {
	members, items, payments, err := marshalCollections(c)
	if err != nil {
		return err
	}

	tag, err := db(ctx, r.pool).Exec(ctx, `
		UPDATE team_carts
		SET status = $2, members = $3, items = $4, payments = $5,
			tip_amount = $6, quote_version = $7, expires_at = $8,
			updated_at = $9, version = version + 1
		WHERE id = $1 AND version = $10`,
		c.ID, string(c.Status), members, items, payments,
		c.TipAmount, c.QuoteVersion, c.ExpiresAt, c.UpdatedAt, c.Version,
	)
	if err != nil {
		return errors.Wrapf(err, "update cart %q", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return teamcart.ErrVersionConflict
	}
	c.Version++
	return nil
}

// GetExpiringCarts returns up to batchSize non-terminal carts whose deadline
// passed before cutoff, oldest first.
func (r *TeamCartRepository) GetExpiringCarts(ctx context.Context, cutoff time.Time, batchSize int) ([]*teamcart.TeamCart, error) {
	rows, err := db(ctx, r.pool).Query(ctx, `
		SELECT `+cartColumns+`
		FROM team_carts
		WHERE status NOT IN ($1, $2) AND expires_at < $3
		ORDER BY expires_at
		LIMIT $4`,
		string(teamcart.StatusConverted), string(teamcart.StatusExpired), cutoff, batchSize,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query expiring carts")
	}
	defer rows.Close()

	var carts []*teamcart.TeamCart
	for rows.Next() {
		cart, err := scanCart(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan expiring cart")
		}
		carts = append(carts, cart)
	}
	return carts, rows.Err()
}

func marshalCollections(c *teamcart.TeamCart) (members, items, payments []byte, err error) {
	if members, err = json.Marshal(c.Members); err != nil {
		return nil, nil, nil, errors.Wrap(err, "marshal members")
	}
	if items, err = json.Marshal(c.Items); err != nil {
		return nil, nil, nil, errors.Wrap(err, "marshal items")
	}
	if payments, err = json.Marshal(c.Payments); err != nil {
		return nil, nil, nil, errors.Wrap(err, "marshal payments")
	}
	return members, items, payments, nil
}

func scanCart(row pgx.Row) (*teamcart.TeamCart, error) {
	var (
		c        teamcart.TeamCart
		status   string
		members  []byte
		items    []byte
		payments []byte
	)
	err := row.Scan(
		&c.ID, &c.RestaurantID, &status, &members, &items, &payments,
		&c.TipAmount, &c.QuoteVersion, &c.ShareToken, &c.ExpiresAt,
		&c.CreatedAt, &c.UpdatedAt, &c.Version,
	)
	if err != nil {
		return nil, err
	}
	c.Status = teamcart.Status(status)
	if err := json.Unmarshal(members, &c.Members); err != nil {
		return nil, errors.Wrap(err, "unmarshal members")
	}
	if err := json.Unmarshal(items, &c.Items); err != nil {
		return nil, errors.Wrap(err, "unmarshal items")
	}
	if err := json.Unmarshal(payments, &c.Payments); err != nil {
		return nil, errors.Wrap(err, "unmarshal payments")
	}
	return &c, nil
}
