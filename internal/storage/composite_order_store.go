package storage

import (
	"errors"
	"fmt"

	"github.com/PxPatel/currency-exchange/internal/types"
)

// CompositeOrderStore combines multiple OrderStore implementations.
// Writes go to ALL stores, reads come from the FIRST store that succeeds.
// Example: CompositeOrderStore([memoryStore, redisStore, postgresStore])
// writes to all three, reads from memory (fastest), falls back to redis, then postgres.
type CompositeOrderStore struct {
	stores []OrderStore
}

// NewCompositeOrderStore creates a composite store from multiple stores
func NewCompositeOrderStore(stores ...OrderStore) *CompositeOrderStore {
	return &CompositeOrderStore{
		stores: stores,
	}
}

func (c *CompositeOrderStore) Save(order *types.Order) error {
	var errs []error
	for _, store := range c.stores {
		if err := store.Save(order); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *CompositeOrderStore) Get(orderID uint64) (*types.Order, error) {
	for _, store := range c.stores {
		order, err := store.Get(orderID)
		if err == nil && order != nil {
			return order, nil
		}
	}
	return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
}

func (c *CompositeOrderStore) Update(order *types.Order) error {
	var errs []error
	for _, store := range c.stores {
		if err := store.Update(order); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *CompositeOrderStore) Remove(orderID uint64) error {
	var errs []error
	for _, store := range c.stores {
		if err := store.Remove(orderID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *CompositeOrderStore) GetAll() []*types.Order {
	return c.firstNonEmpty(func(s OrderStore) []*types.Order { return s.GetAll() })
}

func (c *CompositeOrderStore) GetByUser(userID string) []*types.Order {
	return c.firstNonEmpty(func(s OrderStore) []*types.Order { return s.GetByUser(userID) })
}

func (c *CompositeOrderStore) GetOpen() []*types.Order {
	return c.firstNonEmpty(func(s OrderStore) []*types.Order { return s.GetOpen() })
}

// firstNonEmpty reads from the first store that returns data, so a cold
// memory layer falls through to the persistent ones after a restart
func (c *CompositeOrderStore) firstNonEmpty(read func(OrderStore) []*types.Order) []*types.Order {
	for _, store := range c.stores {
		if orders := read(store); len(orders) > 0 {
			return orders
		}
	}
	return []*types.Order{}
}

func (c *CompositeOrderStore) Close() error {
	var errs []error
	for _, store := range c.stores {
		if err := store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
