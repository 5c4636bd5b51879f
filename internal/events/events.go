// Package events implements the transactional outbox/inbox pair that gives
// at-least-once delivery of domain events with exactly-once effect.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"

	"github.com/feastly/teamcart/internal/domain/teamcart"
)

// Envelope is the persisted form of a domain event: the typed payload is
// serialized at raise time so the dispatcher never needs the concrete type.
type Envelope struct {
	ID         string
	Type       string
	CartID     string
	Payload    []byte
	OccurredAt time.Time
}

// Wrap serializes a domain event into its outbox envelope.
func Wrap(evt teamcart.Event) (Envelope, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, errors.Wrap(err, "marshal event payload")
	}
	return Envelope{
		ID:         evt.EventID(),
		Type:       evt.EventType(),
		CartID:     evt.TeamCartID(),
		Payload:    payload,
		OccurredAt: evt.OccurredAt(),
	}, nil
}

// WrapAll serializes a batch of drained events.
func WrapAll(evts []teamcart.Event) ([]Envelope, error) {
	envs := make([]Envelope, 0, len(evts))
	for _, evt := range evts {
		env, err := Wrap(evt)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, nil
}

// Outbox is the transactional event-publish log. Append runs inside the same
// transaction as the aggregate state write.
type Outbox interface {
	Append(ctx context.Context, envs []Envelope) error
	FetchUndispatched(ctx context.Context, limit int) ([]Envelope, error)
	MarkDispatched(ctx context.Context, eventID string) error
}

// Inbox is the delivery-dedup ledger keyed by (handlerName, eventID).
type Inbox interface {
	Seen(ctx context.Context, handlerName, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, handlerName, eventID string) error
}

// UnitOfWork runs fn inside one storage transaction. Implementations thread
// the transaction through the context so repositories and the inbox pick it
// up transparently.
type UnitOfWork interface {
	ExecuteInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Handler consumes delivered events. Delivery is at-least-once; handlers are
// normally wrapped by Idempotent so redelivery is a no-op.
type Handler interface {
	Name() string
	Handle(ctx context.Context, env Envelope) error
}
