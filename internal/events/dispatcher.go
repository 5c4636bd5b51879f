package events

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// DispatcherConfig controls the outbox polling loop.
type DispatcherConfig struct {
	Tick      time.Duration
	BatchSize int
}

// Dispatcher polls the outbox and delivers undispatched events to registered
// handlers. An event is marked dispatched only after every matching handler
// succeeded; partial failure leaves it for the next tick, which is safe
// because handlers are idempotent.
type Dispatcher struct {
	cfg      DispatcherConfig
	outbox   Outbox
	byType   map[string][]Handler
	catchAll []Handler
}

// NewDispatcher creates a dispatcher with no handlers registered.
func NewDispatcher(cfg DispatcherConfig, outbox Outbox) *Dispatcher {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Dispatcher{
		cfg:    cfg,
		outbox: outbox,
		byType: make(map[string][]Handler),
	}
}

// Register subscribes a handler to the given event types. With no types the
// handler receives every event.
func (d *Dispatcher) Register(h Handler, types ...string) {
	if len(types) == 0 {
		d.catchAll = append(d.catchAll, h)
		return
	}
	for _, t := range types {
		d.byType[t] = append(d.byType[t], h)
	}
}

// Run polls the outbox until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.dispatchBatch(ctx)
		}
	}
}

// dispatchBatch drains one batch of undispatched events. Errors are logged
// and the affected event stays in the outbox for retry; the loop never dies.
func (d *Dispatcher) dispatchBatch(ctx context.Context) {
	lg := zctx.From(ctx)

	envs, err := d.outbox.FetchUndispatched(ctx, d.cfg.BatchSize)
	if err != nil {
		lg.Error("Fetching undispatched events failed", zap.Error(err))
		return
	}

	for _, env := range envs {
		if ctx.Err() != nil {
			return
		}
		if d.deliver(ctx, env) {
			if err := d.outbox.MarkDispatched(ctx, env.ID); err != nil {
				lg.Error("Marking event dispatched failed",
					zap.String("event_id", env.ID), zap.Error(err))
			}
		}
	}
}

// deliver fans one event out to its handlers. Returns true when every
// handler reported success.
func (d *Dispatcher) deliver(ctx context.Context, env Envelope) bool {
	lg := zctx.From(ctx)
	ok := true
	matched := d.byType[env.Type]
	handlers := make([]Handler, 0, len(matched)+len(d.catchAll))
	handlers = append(handlers, matched...)
	handlers = append(handlers, d.catchAll...)
	for _, h := range handlers {
		if err := h.Handle(ctx, env); err != nil {
			lg.Warn("Event handler failed, will retry",
				zap.String("handler", h.Name()),
				zap.String("event_id", env.ID),
				zap.String("event_type", env.Type),
				zap.Error(err),
			)
			ok = false
		}
	}
	return ok
}
