// Package notify defines the push side channel that tells connected clients
// a cart changed. Pushes are cache-busting hints only: the payload is just
// {cartId, version} and clients re-fetch the view model.
package notify

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Notifier delivers version bump hints. Best effort: failures are logged by
// callers and never propagated into the originating command.
type Notifier interface {
	NotifyVersion(ctx context.Context, cartID string, version int64) error
}

// LogNotifier is the default transport: it only logs. The production FCM
// transport satisfies the same interface.
type LogNotifier struct{}

func (LogNotifier) NotifyVersion(ctx context.Context, cartID string, version int64) error {
	zctx.From(ctx).Info("Cart version push",
		zap.String("cart_id", cartID),
		zap.Int64("version", version),
	)
	return nil
}
