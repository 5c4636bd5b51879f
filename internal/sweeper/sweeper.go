// Package sweeper expires team carts whose deadline passed. It runs beside
// live user commands with no locks: MarkAsExpired is idempotent and the
// repository's optimistic concurrency resolves every race one way or the
// other.
package sweeper

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/feastly/teamcart/internal/domain/teamcart"
)

// Config controls the sweep cadence, batch size, and the grace window added
// on top of each cart's deadline.
type Config struct {
	Cadence     time.Duration
	BatchSize   int
	GraceWindow time.Duration
}

// CandidateSource finds carts past their deadline.
type CandidateSource interface {
	GetExpiringCarts(ctx context.Context, cutoff time.Time, batchSize int) ([]*teamcart.TeamCart, error)
}

// Expirer applies the expiration transition through the same command path
// user actions take.
type Expirer interface {
	ExpireCart(ctx context.Context, cartID string) error
}

// Sweeper is the periodic expiration loop.
type Sweeper struct {
	cfg    Config
	carts  CandidateSource
	expire Expirer
	now    func() time.Time
}

// New creates a sweeper with sane defaults for unset config fields.
func New(cfg Config, carts CandidateSource, expire Expirer) *Sweeper {
	if cfg.Cadence <= 0 {
		cfg.Cadence = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Sweeper{cfg: cfg, carts: carts, expire: expire, now: time.Now}
}

// Run sweeps on the configured cadence until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce drains every current candidate batch by batch, stopping when a
// batch comes back empty or the context is cancelled. Per-cart failures are
// logged and skipped; the sweep itself never dies.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	lg := zctx.From(ctx)
	cutoff := s.now().Add(-s.cfg.GraceWindow)

	for {
		if ctx.Err() != nil {
			return
		}
		batch, err := s.carts.GetExpiringCarts(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			lg.Error("Fetching expiration candidates failed", zap.Error(err))
			return
		}
		if len(batch) == 0 {
			return
		}

		progressed := 0
		for _, cart := range batch {
			// Cancellation stops crisply between carts; each cart's
			// transition is atomic.
			if ctx.Err() != nil {
				return
			}
			err := s.expire.ExpireCart(ctx, cart.ID)
			switch {
			case err == nil:
				progressed++
				lg.Info("Cart expired", zap.String("cart_id", cart.ID))
			case errors.Is(err, teamcart.ErrVersionConflict):
				// A live command won the race. The cart either left the
				// candidate set or gets picked up again next cycle.
				lg.Info("Skipping cart, concurrent update",
					zap.String("cart_id", cart.ID))
			case errors.Is(err, teamcart.ErrCartNotFound):
				lg.Info("Skipping cart, no longer present",
					zap.String("cart_id", cart.ID))
			default:
				lg.Error("Expiring cart failed",
					zap.String("cart_id", cart.ID), zap.Error(err))
			}
		}

		// A partial batch means the candidate set is drained. Zero progress
		// on a full batch means every cart is stuck; let the next cycle
		// retry instead of spinning here.
		if len(batch) < s.cfg.BatchSize || progressed == 0 {
			return
		}
	}
}
