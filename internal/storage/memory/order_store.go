package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/PxPatel/currency-exchange/internal/storage"
	"github.com/PxPatel/currency-exchange/internal/types"
)

// InMemoryOrderStore implements OrderStore using an in-memory map.
// Thread-safe for concurrent access via RWMutex.
// When maxSize is exceeded the oldest filled or cancelled orders are evicted;
// open orders are never evicted since the engine must be able to find them.
type InMemoryOrderStore struct {
	orders   map[uint64]*types.Order
	orderIDs []uint64 // insertion order, for eviction
	maxSize  int
	mutex    sync.RWMutex
}

// NewInMemoryOrderStore creates a new in-memory order store with a size limit
func NewInMemoryOrderStore(maxSize int) *InMemoryOrderStore {
	return &InMemoryOrderStore{
		orders:   make(map[uint64]*types.Order),
		orderIDs: make([]uint64, 0, maxSize),
		maxSize:  maxSize,
	}
}

func (s *InMemoryOrderStore) Save(order *types.Order) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.orders[order.ID]; !exists {
		s.orderIDs = append(s.orderIDs, order.ID)
	}
	s.orders[order.ID] = order.Clone()
	s.evict()
	return nil
}

// evict drops terminal orders, oldest first, until the store fits maxSize
func (s *InMemoryOrderStore) evict() {
	excess := len(s.orderIDs) - s.maxSize
	if excess <= 0 {
		return
	}

	kept := s.orderIDs[:0]
	for _, id := range s.orderIDs {
		if excess > 0 && s.orders[id].Status.Terminal() {
			delete(s.orders, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	s.orderIDs = kept
}

func (s *InMemoryOrderStore) Get(orderID uint64) (*types.Order, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	order, exists := s.orders[orderID]
	if !exists {
		return nil, fmt.Errorf("order %d: %w", orderID, storage.ErrNotFound)
	}
	return order.Clone(), nil
}

func (s *InMemoryOrderStore) Update(order *types.Order) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.orders[order.ID]; !exists {
		return fmt.Errorf("order %d: %w", order.ID, storage.ErrNotFound)
	}
	s.orders[order.ID] = order.Clone()
	s.evict()
	return nil
}

func (s *InMemoryOrderStore) Remove(orderID uint64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.orders, orderID)
	for i, id := range s.orderIDs {
		if id == orderID {
			s.orderIDs = append(s.orderIDs[:i], s.orderIDs[i+1:]...)
			break
		}
	}
	return nil
}

func (s *InMemoryOrderStore) GetAll() []*types.Order {
	return s.filter(func(*types.Order) bool { return true })
}

func (s *InMemoryOrderStore) GetByUser(userID string) []*types.Order {
	return s.filter(func(o *types.Order) bool { return o.UserID == userID })
}

func (s *InMemoryOrderStore) GetOpen() []*types.Order {
	return s.filter(func(o *types.Order) bool { return !o.Status.Terminal() })
}

// filter returns copies of the matching orders in sequence order
func (s *InMemoryOrderStore) filter(keep func(*types.Order) bool) []*types.Order {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	orders := make([]*types.Order, 0)
	for _, order := range s.orders {
		if keep(order) {
			orders = append(orders, order.Clone())
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Seq < orders[j].Seq })
	return orders
}

func (s *InMemoryOrderStore) Close() error {
	return nil
}
