package journal

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/PxPatel/currency-exchange/internal/logger"
	"github.com/PxPatel/currency-exchange/internal/storage"
	"github.com/PxPatel/currency-exchange/internal/types"
)

// errStop ends a store scan early when the consumer of an iterator breaks
var errStop = errors.New("stop iteration")

// Journal is the append-only record of executed trades. It owns trade ID
// assignment so IDs increase in creation order across every pair.
type Journal struct {
	store  storage.TradeStore
	mu     sync.Mutex
	lastID uint64
}

func New(store storage.TradeStore) *Journal {
	return &Journal{store: store}
}

// Resume seeds the ID counter from the last trade held by the store. It must
// run before the first Append after a restart.
func (j *Journal) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	last, err := j.store.LastID()
	if err != nil {
		return fmt.Errorf("failed to read last trade id: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if last > j.lastID {
		j.lastID = last
	}
	logger.Info("Trade journal resumed", logger.Fields{"last_trade_id": j.lastID})
	return nil
}

// LastID returns the ID of the most recently appended trade
func (j *Journal) LastID() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastID
}

// Append assigns IDs to the trades and writes them to the store as one
// batch. IDs are only consumed when the write succeeds, so a failed append
// leaves no gap. Errors wrap types.ErrJournalWrite.
func (j *Journal) Append(ctx context.Context, trades ...*types.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrJournalWrite, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	next := j.lastID
	for _, trade := range trades {
		next++
		trade.TradeID = next
	}

	if err := j.store.SaveBatch(trades); err != nil {
		for _, trade := range trades {
			trade.TradeID = 0
		}
		return fmt.Errorf("%w: %v", types.ErrJournalWrite, err)
	}

	j.lastID = next
	return nil
}

// ReadAll yields every trade of pair in creation order. The sequence reads
// the store lazily and can be ranged over again to restart from the start.
func (j *Journal) ReadAll(pair types.Pair) iter.Seq2[*types.Trade, error] {
	return j.Since(pair, 0)
}

// Since yields the trades of pair with an ID greater than afterID
func (j *Journal) Since(pair types.Pair, afterID uint64) iter.Seq2[*types.Trade, error] {
	return func(yield func(*types.Trade, error) bool) {
		err := j.store.Scan(pair, afterID, func(trade *types.Trade) error {
			if !yield(trade, nil) {
				return errStop
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStop) {
			yield(nil, err)
		}
	}
}

// Collect drains Since into a slice
func (j *Journal) Collect(pair types.Pair, afterID uint64) ([]*types.Trade, error) {
	var trades []*types.Trade
	for trade, err := range j.Since(pair, afterID) {
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

func (j *Journal) Close() error {
	return j.store.Close()
}
