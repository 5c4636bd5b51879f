package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feastly/teamcart/internal/events"
)

var _ events.Inbox = (*InboxStore)(nil)

// InboxStore is the delivery-dedup ledger. A row per (handler, event) means
// the handler's effect already committed.
type InboxStore struct {
	pool *pgxpool.Pool
}

// NewInboxStore returns an InboxStore on the given pool.
func NewInboxStore(pool *pgxpool.Pool) *InboxStore {
	return &InboxStore{pool: pool}
}

// Seen reports whether the handler already processed the event.
func (s *InboxStore) Seen(ctx context.Context, handlerName, eventID string) (bool, error) {
	var seen bool
	err := db(ctx, s.pool).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM inbox_events
			WHERE handler_name = $1 AND event_id = $2
		)`, handlerName, eventID).Scan(&seen)
	if err != nil {
		return false, errors.Wrap(err, "check inbox entry")
	}
	return seen, nil
}

// MarkProcessed records the (handler, event) pair. Runs inside the same
// transaction as the handler's side effect, so when two deliveries of the
// same event race past Seen, the second insert hits the primary key and
// rolls its whole transaction back. The retry is then deduped by Seen.
func (s *InboxStore) MarkProcessed(ctx context.Context, handlerName, eventID string) error {
	_, err := db(ctx, s.pool).Exec(ctx, `
		INSERT INTO inbox_events (handler_name, event_id, processed_at)
		VALUES ($1, $2, now())`,
		handlerName, eventID,
	)
	if err != nil {
		return errors.Wrap(err, "insert inbox entry")
	}
	return nil
}
