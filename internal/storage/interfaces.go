package storage

import (
	"context"
	"errors"

	"github.com/PxPatel/currency-exchange/internal/types"
)

var (
	// ErrNotFound is returned by stores when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrScanUnsupported is returned by write-only trade stores (feeds)
	ErrScanUnsupported = errors.New("store does not support reads")
)

// OrderStore abstracts order storage and retrieval operations.
// Implementations can be in-memory (map), Redis, PostgreSQL, etc.
type OrderStore interface {
	// Save stores a new order or replaces an existing one
	Save(order *types.Order) error

	// Get retrieves an order by ID, wrapping ErrNotFound when absent
	Get(orderID uint64) (*types.Order, error)

	// Update modifies an existing order (fills, status changes)
	Update(order *types.Order) error

	// Remove deletes an order from storage
	Remove(orderID uint64) error

	// GetAll returns all tracked orders
	GetAll() []*types.Order

	// GetByUser returns all orders for a specific user
	GetByUser(userID string) []*types.Order

	// GetOpen returns the orders that are neither filled nor cancelled,
	// ordered by submission sequence
	GetOpen() []*types.Order

	// Close releases any resources held by the store
	Close() error
}

// TradeStore is a backend of the trade journal. Trades arrive with their
// TradeID already assigned and in increasing TradeID order.
type TradeStore interface {
	// Save persists a single trade
	Save(trade *types.Trade) error

	// SaveBatch persists the trades of one match, all or nothing where the
	// backend allows it
	SaveBatch(trades []*types.Trade) error

	// Scan calls fn for each trade of pair with TradeID > afterID in
	// ascending TradeID order. An error from fn stops the scan and is returned.
	Scan(pair types.Pair, afterID uint64, fn func(*types.Trade) error) error

	// LastID returns the highest TradeID stored, 0 when empty
	LastID() (uint64, error)

	// Close releases any resources held by the store
	Close() error
}

// AccountStore persists ledger accounts
type AccountStore interface {
	// SaveAccounts upserts the given accounts in one write
	SaveAccounts(ctx context.Context, accounts []types.Account) error

	// LoadAccounts returns every stored account ordered by user then currency
	LoadAccounts(ctx context.Context) ([]types.Account, error)
}
