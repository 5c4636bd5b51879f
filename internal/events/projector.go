package events

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/feastly/teamcart/internal/domain/teamcart"
	"github.com/feastly/teamcart/internal/notify"
)

// ViewProjectorName is the inbox handler name for the view model refresher.
const ViewProjectorName = "cart-view-projector"

// ViewProjector rebuilds the cart view model after every cart event and
// pushes a version hint to connected clients. Expired carts have their view
// model deleted instead. The push is fire-and-forget; a store failure
// returns an error so the event is redelivered.
type ViewProjector struct {
	carts    teamcart.Repository
	store    teamcart.ViewStore
	notifier notify.Notifier
}

// NewViewProjector creates the projector body. Wrap it with Idempotent
// before registering.
func NewViewProjector(carts teamcart.Repository, store teamcart.ViewStore, notifier notify.Notifier) *ViewProjector {
	return &ViewProjector{carts: carts, store: store, notifier: notifier}
}

// Refresh is the handler body passed to Idempotent.
func (p *ViewProjector) Refresh(ctx context.Context, env Envelope) error {
	lg := zctx.From(ctx)

	cart, err := p.carts.GetByID(ctx, env.CartID)
	if err != nil {
		if errors.Is(err, teamcart.ErrCartNotFound) {
			// Cart purged by retention; nothing left to project.
			return nil
		}
		return errors.Wrap(err, "load cart")
	}

	if env.Type == teamcart.EventTypeExpired {
		if err := p.store.DeleteViewModel(ctx, cart.ID); err != nil {
			return errors.Wrap(err, "delete view model")
		}
	} else {
		vm := teamcart.BuildViewModel(cart)
		if err := p.store.SetViewModel(ctx, vm); err != nil {
			return errors.Wrap(err, "write view model")
		}
	}

	if err := p.notifier.NotifyVersion(ctx, cart.ID, cart.Version); err != nil {
		lg.Warn("Version push failed",
			zap.String("cart_id", cart.ID), zap.Error(err))
	}
	return nil
}
