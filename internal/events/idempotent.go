package events

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// idempotentHandler wraps a handler body so redelivery of the same event is
// a no-op: the inbox is checked first, and the body plus the inbox write
// commit in one transaction. If the body fails, neither commits and the
// event is retried on the next dispatch cycle.
type idempotentHandler struct {
	name  string
	inbox Inbox
	uow   UnitOfWork
	fn    func(ctx context.Context, env Envelope) error
}

// Idempotent composes a handler body with an inbox check/write pair. This is
// deliberately a wrapper, not a base type to embed: any handler body for any
// event type gets the same guarantee.
func Idempotent(name string, inbox Inbox, uow UnitOfWork, fn func(ctx context.Context, env Envelope) error) Handler {
	return &idempotentHandler{name: name, inbox: inbox, uow: uow, fn: fn}
}

func (h *idempotentHandler) Name() string { return h.name }

func (h *idempotentHandler) Handle(ctx context.Context, env Envelope) error {
	seen, err := h.inbox.Seen(ctx, h.name, env.ID)
	if err != nil {
		return errors.Wrap(err, "check inbox")
	}
	if seen {
		zctx.From(ctx).Debug("Skipping already-processed event",
			zap.String("handler", h.name),
			zap.String("event_id", env.ID),
		)
		return nil
	}

	return h.uow.ExecuteInTransaction(ctx, func(ctx context.Context) error {
		if err := h.fn(ctx, env); err != nil {
			return err
		}
		return h.inbox.MarkProcessed(ctx, h.name, env.ID)
	})
}
