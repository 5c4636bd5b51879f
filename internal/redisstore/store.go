// Package redisstore is the fast, best-effort mirror of cart state for
// real-time clients. It is a cache over the relational source of truth:
// always rebuilt in full, never patched, momentarily stale by design.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/feastly/teamcart/internal/domain/teamcart"
)

var _ teamcart.ViewStore = (*ViewStore)(nil)

// ViewStore keeps JSON view models in Redis keyed by cart id.
type ViewStore struct {
	client  *redis.Client
	baseTTL time.Duration
}

// NewViewStore creates a store with the given base TTL. A random jitter of
// up to a fifth of the TTL is added per write to spread out evictions.
func NewViewStore(client *redis.Client, baseTTL time.Duration) *ViewStore {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &ViewStore{client: client, baseTTL: baseTTL}
}

// GetViewModel returns the cached view model, or (nil, nil) on a miss.
func (s *ViewStore) GetViewModel(ctx context.Context, cartID string) (*teamcart.ViewModel, error) {
	data, err := s.client.Get(ctx, viewKey(cartID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}

	var vm teamcart.ViewModel
	if err := json.Unmarshal(data, &vm); err != nil {
		return nil, errors.Wrap(err, "unmarshal view model")
	}
	return &vm, nil
}

// SetViewModel overwrites the cached view model wholesale.
func (s *ViewStore) SetViewModel(ctx context.Context, vm *teamcart.ViewModel) error {
	data, err := json.Marshal(vm)
	if err != nil {
		return errors.Wrap(err, "marshal view model")
	}
	ttl := s.baseTTL + time.Duration(rand.Int63n(int64(s.baseTTL/5)+1))
	if err := s.client.Set(ctx, viewKey(vm.CartID), data, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

// DeleteViewModel drops the cached view model.
func (s *ViewStore) DeleteViewModel(ctx context.Context, cartID string) error {
	if err := s.client.Del(ctx, viewKey(cartID)).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

func viewKey(cartID string) string {
	return fmt.Sprintf("teamcart:vm:%s", cartID)
}
