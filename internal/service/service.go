// Package service orchestrates team cart commands: load the aggregate,
// apply one mutation, persist with optimistic concurrency, and append the
// drained domain events to the outbox, all inside one transaction.
package service

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/feastly/teamcart/internal/domain/menu"
	"github.com/feastly/teamcart/internal/domain/teamcart"
	"github.com/feastly/teamcart/internal/events"
	"github.com/feastly/teamcart/internal/payment"
)

// Config holds command-level tunables.
type Config struct {
	// CartTTL is how long a new cart stays joinable before the sweeper may
	// expire it.
	CartTTL time.Duration
}

// Service is the application layer over the TeamCart aggregate.
type Service struct {
	cfg      Config
	carts    teamcart.Repository
	menus    menu.Repository
	store    teamcart.ViewStore
	outbox   events.Outbox
	uow      events.UnitOfWork
	provider payment.Provider
}

// New wires the service with its collaborators.
func New(
	cfg Config,
	carts teamcart.Repository,
	menus menu.Repository,
	store teamcart.ViewStore,
	outbox events.Outbox,
	uow events.UnitOfWork,
	provider payment.Provider,
) *Service {
	if cfg.CartTTL <= 0 {
		cfg.CartTTL = 2 * time.Hour
	}
	return &Service{
		cfg:      cfg,
		carts:    carts,
		menus:    menus,
		store:    store,
		outbox:   outbox,
		uow:      uow,
		provider: provider,
	}
}

// mutate runs the canonical command shape: load -> fn -> save -> outbox,
// atomically. When fn raises no events the save is skipped entirely, which
// is what makes MarkAsExpired a true no-op on terminal carts.
func (s *Service) mutate(ctx context.Context, cartID string, fn func(cart *teamcart.TeamCart) error) (*teamcart.TeamCart, error) {
	var out *teamcart.TeamCart
	err := s.uow.ExecuteInTransaction(ctx, func(ctx context.Context) error {
		cart, err := s.carts.GetByID(ctx, cartID)
		if err != nil {
			return err
		}
		if err := fn(cart); err != nil {
			return err
		}
		evts := cart.DrainEvents()
		if len(evts) == 0 {
			out = cart
			return nil
		}
		if err := s.carts.Update(ctx, cart); err != nil {
			return err
		}
		envs, err := events.WrapAll(evts)
		if err != nil {
			return err
		}
		if err := s.outbox.Append(ctx, envs); err != nil {
			return errors.Wrap(err, "append outbox")
		}
		out = cart
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateCart opens a new cart with the caller as host and persists it along
// with its creation event.
func (s *Service) CreateCart(ctx context.Context, hostUserID, hostDisplayName, restaurantID string) (*teamcart.TeamCart, error) {
	cart := teamcart.New(hostUserID, hostDisplayName, restaurantID, s.cfg.CartTTL)
	err := s.uow.ExecuteInTransaction(ctx, func(ctx context.Context) error {
		return s.carts.Create(ctx, cart)
	})
	if err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Team cart created",
		zap.String("cart_id", cart.ID),
		zap.String("restaurant_id", restaurantID),
		zap.Time("expires_at", cart.ExpiresAt),
	)
	return cart, nil
}

// JoinCart validates the share token and adds the user as a guest.
func (s *Service) JoinCart(ctx context.Context, cartID, token, userID, displayName string) (*teamcart.TeamCart, error) {
	return s.mutate(ctx, cartID, func(cart *teamcart.TeamCart) error {
		if err := cart.ValidateJoinToken(token); err != nil {
			return err
		}
		return cart.AddMember(userID, displayName, teamcart.RoleGuest)
	})
}

// AddItem looks the menu item up, snapshots its current price, and appends
// the line to the cart.
func (s *Service) AddItem(ctx context.Context, cartID, userID, menuItemID string, quantity int) (*teamcart.Item, error) {
	mi, err := s.menus.GetByID(ctx, menuItemID)
	if err != nil {
		return nil, err
	}
	if !mi.Available {
		return nil, menu.ErrNotFound
	}
	snap := teamcart.ItemSnapshot{
		MenuItemID:   mi.ID,
		CategoryID:   mi.CategoryID,
		RestaurantID: mi.RestaurantID,
		Name:         mi.Name,
		BasePrice:    mi.BasePrice,
	}
	var item *teamcart.Item
	_, err = s.mutate(ctx, cartID, func(cart *teamcart.TeamCart) error {
		added, err := cart.AddItem(userID, snap, quantity)
		if err != nil {
			return err
		}
		item = added
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// RemoveItem deletes a line the caller owns.
func (s *Service) RemoveItem(ctx context.Context, cartID, userID, itemID string) error {
	_, err := s.mutate(ctx, cartID, func(cart *teamcart.TeamCart) error {
		return cart.RemoveItem(userID, itemID)
	})
	return err
}

// UpdateItemQuantity changes the quantity of a line the caller owns.
func (s *Service) UpdateItemQuantity(ctx context.Context, cartID, userID, itemID string, quantity int) error {
	_, err := s.mutate(ctx, cartID, func(cart *teamcart.TeamCart) error {
		return cart.UpdateItemQuantity(userID, itemID, quantity)
	})
	return err
}

// LockForPayment freezes the cart so members can commit payments.
func (s *Service) LockForPayment(ctx context.Context, cartID, userID string) (*teamcart.TeamCart, error) {
	return s.mutate(ctx, cartID, func(cart *teamcart.TeamCart) error {
		return cart.LockForPayment(userID)
	})
}

// ApplyTip sets the host's tip on a locked cart.
func (s *Service) ApplyTip(ctx context.Context, cartID, userID string, amount decimal.Decimal) error {
	_, err := s.mutate(ctx, cartID, func(cart *teamcart.TeamCart) error {
		return cart.ApplyTip(userID, amount)
	})
	return err
}

// FinalizePricing bumps the quote version members must commit against.
func (s *Service) FinalizePricing(ctx context.Context, cartID, userID string) (*teamcart.TeamCart, error) {
	return s.mutate(ctx, cartID, func(cart *teamcart.TeamCart) error {
		return cart.FinalizePricing(userID)
	})
}

// CommitToCashOnDelivery records the member's COD commitment for their
// current share of the cart.
func (s *Service) CommitToCashOnDelivery(ctx context.Context, cartID, userID string, quoteVersion int) error {
	_, err := s.mutate(ctx, cartID, func(cart *teamcart.TeamCart) error {
		return cart.CommitToCashOnDelivery(userID, cart.MemberSubtotal(userID), quoteVersion)
	})
	return err
}

// InitiateOnlinePayment prechecks the commit, asks the provider for an
// intent, then records the pending commitment. The provider call happens
// outside the transaction; an orphaned intent simply expires at the
// provider if the transactional record fails.
func (s *Service) InitiateOnlinePayment(ctx context.Context, cartID, userID string, quoteVersion int) (payment.Intent, error) {
	cart, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return payment.Intent{}, err
	}
	if err := cart.CanCommitPayment(userID, quoteVersion); err != nil {
		return payment.Intent{}, err
	}
	amount := cart.MemberSubtotal(userID)

	intent, err := s.provider.CreateIntent(ctx, payment.IntentRequest{
		CartID: cartID,
		UserID: userID,
		Amount: amount,
	})
	if err != nil {
		return payment.Intent{}, errors.Wrap(err, "create payment intent")
	}

	_, err = s.mutate(ctx, cartID, func(cart *teamcart.TeamCart) error {
		return cart.InitiateOnlinePayment(userID, cart.MemberSubtotal(userID), quoteVersion)
	})
	if err != nil {
		return payment.Intent{}, err
	}
	return intent, nil
}

// SettleOnlinePayment applies a verified provider webhook verdict to the
// member's pending online payment.
func (s *Service) SettleOnlinePayment(ctx context.Context, cartID, userID string, succeeded bool) error {
	_, err := s.mutate(ctx, cartID, func(cart *teamcart.TeamCart) error {
		return cart.SettleOnlinePayment(userID, succeeded)
	})
	return err
}

// SetMemberReady toggles the caller's readiness flag.
func (s *Service) SetMemberReady(ctx context.Context, cartID, userID string, ready bool) error {
	_, err := s.mutate(ctx, cartID, func(cart *teamcart.TeamCart) error {
		return cart.SetMemberReady(userID, ready)
	})
	return err
}

// ExpireCart transitions a cart to Expired through the same aggregate method
// a user command would use. A terminal cart is a silent no-op.
func (s *Service) ExpireCart(ctx context.Context, cartID string) error {
	_, err := s.mutate(ctx, cartID, func(cart *teamcart.TeamCart) error {
		return cart.MarkAsExpired()
	})
	return err
}

// ConvertCart records that the order-conversion process consumed this cart.
func (s *Service) ConvertCart(ctx context.Context, cartID, orderID string) error {
	_, err := s.mutate(ctx, cartID, func(cart *teamcart.TeamCart) error {
		return cart.MarkAsConverted(orderID)
	})
	return err
}

// GetViewModel serves the live cart view from the fast store. On a miss
// (cold cache, TTL eviction) it rebuilds from the source of truth and
// repopulates the store best-effort.
func (s *Service) GetViewModel(ctx context.Context, cartID string) (*teamcart.ViewModel, error) {
	vm, err := s.store.GetViewModel(ctx, cartID)
	if err == nil && vm != nil {
		return vm, nil
	}
	if err != nil {
		zctx.From(ctx).Warn("View store read failed, falling back to rebuild",
			zap.String("cart_id", cartID), zap.Error(err))
	}

	cart, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	vm = teamcart.BuildViewModel(cart)
	// Terminal carts are never recached: the projector deletes the entry on
	// expiration, and a refill here would resurrect it.
	if !cart.Status.IsTerminal() {
		if err := s.store.SetViewModel(ctx, vm); err != nil {
			zctx.From(ctx).Warn("View store refill failed",
				zap.String("cart_id", cartID), zap.Error(err))
		}
	}
	return vm, nil
}
