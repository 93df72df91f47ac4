package memory

import (
	"sync"

	"github.com/PxPatel/currency-exchange/internal/types"
)

// InMemoryTradeStore keeps every trade, grouped per pair in TradeID order.
// Unlike the order store nothing is evicted: it is a complete journal for
// tests and single-process deployments.
type InMemoryTradeStore struct {
	trades map[types.Pair][]*types.Trade
	lastID uint64
	mutex  sync.RWMutex
}

func NewInMemoryTradeStore() *InMemoryTradeStore {
	return &InMemoryTradeStore{
		trades: make(map[types.Pair][]*types.Trade),
	}
}

func (s *InMemoryTradeStore) Save(trade *types.Trade) error {
	return s.SaveBatch([]*types.Trade{trade})
}

func (s *InMemoryTradeStore) SaveBatch(trades []*types.Trade) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, trade := range trades {
		t := *trade
		s.trades[t.Pair] = append(s.trades[t.Pair], &t)
		if t.TradeID > s.lastID {
			s.lastID = t.TradeID
		}
	}
	return nil
}

// Scan works on a snapshot of the pair's slice, so fn may take its time
// without blocking writers
func (s *InMemoryTradeStore) Scan(pair types.Pair, afterID uint64, fn func(*types.Trade) error) error {
	s.mutex.RLock()
	trades := s.trades[pair]
	s.mutex.RUnlock()

	for _, trade := range trades {
		if trade.TradeID <= afterID {
			continue
		}
		t := *trade
		if err := fn(&t); err != nil {
			return err
		}
	}
	return nil
}

func (s *InMemoryTradeStore) LastID() (uint64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastID, nil
}

func (s *InMemoryTradeStore) Close() error {
	return nil
}
