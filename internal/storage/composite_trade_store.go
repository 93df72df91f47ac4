package storage

import (
	"errors"

	"github.com/PxPatel/currency-exchange/internal/types"
)

// CompositeTradeStore combines multiple TradeStore implementations.
// Writes go to ALL stores; reads come from the first store that supports
// them, so the most complete durable store should be listed first.
// Example: CompositeTradeStore(pebbleStore, memoryStore, kafkaFeed).
type CompositeTradeStore struct {
	stores []TradeStore
}

// NewCompositeTradeStore creates a composite store from multiple stores
func NewCompositeTradeStore(stores ...TradeStore) *CompositeTradeStore {
	return &CompositeTradeStore{
		stores: stores,
	}
}

// Save reports every failing layer; a trade is only durable when all of
// them accepted it
func (c *CompositeTradeStore) Save(trade *types.Trade) error {
	var errs []error
	for _, store := range c.stores {
		if err := store.Save(trade); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *CompositeTradeStore) SaveBatch(trades []*types.Trade) error {
	var errs []error
	for _, store := range c.stores {
		if err := store.SaveBatch(trades); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *CompositeTradeStore) Scan(pair types.Pair, afterID uint64, fn func(*types.Trade) error) error {
	for _, store := range c.stores {
		err := store.Scan(pair, afterID, fn)
		if errors.Is(err, ErrScanUnsupported) {
			continue
		}
		return err
	}
	return ErrScanUnsupported
}

func (c *CompositeTradeStore) LastID() (uint64, error) {
	var last uint64
	for _, store := range c.stores {
		id, err := store.LastID()
		if errors.Is(err, ErrScanUnsupported) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if id > last {
			last = id
		}
	}
	return last, nil
}

func (c *CompositeTradeStore) Close() error {
	var errs []error
	for _, store := range c.stores {
		if err := store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
