package order

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/clickcart/server/internal/module/store"
)

// Repository persists local orders through the content store. Updates go
// through a per-order mutex so concurrent webhook deliveries for the same
// order cannot lose writes.
type Repository struct {
	store store.ContentStore
	locks keyedMutex
}

// NewRepository creates an order repository.
func NewRepository(cs store.ContentStore) *Repository {
	return &Repository{store: cs}
}

// Create persists a new order.
func (r *Repository) Create(ctx context.Context, o *LocalOrder) error {
	if err := r.store.Upsert(ctx, store.TypeOrder, o); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	return nil
}

// Get fetches an order by local id.
func (r *Repository) Get(ctx context.Context, id string) (*LocalOrder, error) {
	var o LocalOrder
	if err := r.store.Get(ctx, store.TypeOrder, id, &o); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// GetByProviderOrder fetches the order created for a provider order id,
// or ErrNotFound when no capture has been recorded for it.
func (r *Repository) GetByProviderOrder(ctx context.Context, providerOrderID string) (*LocalOrder, error) {
	var orders []LocalOrder
	filter := store.Filter{Equals: map[string]string{"provider_order_id": providerOrderID}}
	if err := r.store.Query(ctx, store.TypeOrder, filter, &orders); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrNotFound
	}
	return &orders[0], nil
}

// List returns all orders, newest last.
func (r *Repository) List(ctx context.Context) ([]LocalOrder, error) {
	var orders []LocalOrder
	if err := r.store.Query(ctx, store.TypeOrder, store.Filter{}, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Update applies fn to the order under its per-order lock and persists
// the result. fn returning an error aborts without persisting.
func (r *Repository) Update(ctx context.Context, id string, fn func(*LocalOrder) error) (*LocalOrder, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	o, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(o); err != nil {
		return nil, err
	}
	if err := r.store.Upsert(ctx, store.TypeOrder, o); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	return o, nil
}

// UpdateByProviderOrder is Update keyed by the provider order id.
func (r *Repository) UpdateByProviderOrder(ctx context.Context, providerOrderID string, fn func(*LocalOrder) error) (*LocalOrder, error) {
	o, err := r.GetByProviderOrder(ctx, providerOrderID)
	if err != nil {
		return nil, err
	}
	return r.Update(ctx, o.ID, fn)
}

// keyedMutex hands out one mutex per key. Entries are never reaped; the
// working set is bounded by the number of distinct orders touched in a
// process lifetime.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
