package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feastly/teamcart/internal/events"
)

var _ events.Outbox = (*OutboxStore)(nil)

// OutboxStore persists domain events in the same transaction as the
// aggregate write and hands them to the dispatcher afterwards.
type OutboxStore struct {
	pool *pgxpool.Pool
}

// NewOutboxStore returns an OutboxStore on the given pool.
func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

// Append inserts envelopes. Runs inside the caller's ambient transaction.
func (s *OutboxStore) Append(ctx context.Context, envs []events.Envelope) error {
	q := db(ctx, s.pool)
	for _, env := range envs {
		_, err := q.Exec(ctx, `
			INSERT INTO outbox_events (id, cart_id, event_type, payload, occurred_at)
			VALUES ($1, $2, $3, $4, $5)`,
			env.ID, env.CartID, env.Type, env.Payload, env.OccurredAt,
		)
		if err != nil {
			return errors.Wrapf(err, "insert outbox event %q", env.ID)
		}
	}
	return nil
}

// FetchUndispatched returns up to limit pending events, oldest first.
func (s *OutboxStore) FetchUndispatched(ctx context.Context, limit int) ([]events.Envelope, error) {
	rows, err := db(ctx, s.pool).Query(ctx, `
		SELECT id, cart_id, event_type, payload, occurred_at
		FROM outbox_events
		WHERE dispatched_at IS NULL
		ORDER BY occurred_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query undispatched events")
	}
	defer rows.Close()

	var envs []events.Envelope
	for rows.Next() {
		var env events.Envelope
		if err := rows.Scan(&env.ID, &env.CartID, &env.Type, &env.Payload, &env.OccurredAt); err != nil {
			return nil, errors.Wrap(err, "scan outbox event")
		}
		envs = append(envs, env)
	}
	return envs, rows.Err()
}

// MarkDispatched stamps the event as delivered.
func (s *OutboxStore) MarkDispatched(ctx context.Context, eventID string) error {
	_, err := db(ctx, s.pool).Exec(ctx, `
		UPDATE outbox_events SET dispatched_at = now() WHERE id = $1`, eventID)
	if err != nil {
		return errors.Wrapf(err, "mark event %q dispatched", eventID)
	}
	return nil
}
